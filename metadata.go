package gasdb

import (
	"fmt"
	"time"

	"gasdb/master"
	"gasdb/objectutil"
	"go.mongodb.org/mongo-driver/bson"
)

// newModificationToken returns a fresh opaque token, delegating to the
// master index's generator so every token in the system comes from one
// source regardless of whether it originates from a collection persist or
// an index-side force-update.
func newModificationToken() string {
	return master.GenerateModificationToken()
}

// schemaVersion is the collection blob format version this build writes.
// It is reserved headroom for future migrations; nothing reads it yet.
const schemaVersion = 1

// CollectionMetadata is the per-collection record persisted alongside a
// collection's documents (in the blob) and, independently, in the master
// index. ModificationToken is regenerated on every persist and is the value
// MasterIndex uses for conflict detection across instances.
type CollectionMetadata struct {
	Name              string    `bson:"name" json:"name"`
	FileHandle        string    `bson:"fileHandle" json:"fileHandle"`
	Created           time.Time `bson:"created" json:"created"`
	LastUpdated       time.Time `bson:"lastUpdated" json:"lastUpdated"`
	DocumentCount     int       `bson:"documentCount" json:"documentCount"`
	ModificationToken string    `bson:"modificationToken" json:"modificationToken"`
	SchemaVersion     int       `bson:"schemaVersion" json:"schemaVersion"`
}

func newCollectionMetadata(name, handle string) CollectionMetadata {
	now := time.Now()
	return CollectionMetadata{
		Name:              name,
		FileHandle:        handle,
		Created:           now,
		LastUpdated:       now,
		DocumentCount:     0,
		ModificationToken: newModificationToken(),
		SchemaVersion:     schemaVersion,
	}
}

// toBSON renders metadata as the bson.M shape stored inside a collection
// blob's "metadata" key.
func (m CollectionMetadata) toBSON() bson.M {
	return bson.M{
		"name":              m.Name,
		"fileHandle":        m.FileHandle,
		"created":           m.Created,
		"lastUpdated":       m.LastUpdated,
		"documentCount":     m.DocumentCount,
		"modificationToken": m.ModificationToken,
		"schemaVersion":     m.SchemaVersion,
	}
}

// metadataFromBSON reverses toBSON, tolerating the absence of fields added
// after a blob was first written (schemaVersion on an old blob, say).
func metadataFromBSON(v interface{}) (CollectionMetadata, error) {
	m, ok := objectutil.AsMap(v)
	if !ok {
		return CollectionMetadata{}, fmt.Errorf("gasdb: collection blob metadata is not an object")
	}

	meta := CollectionMetadata{}
	meta.Name, _ = m["name"].(string)
	meta.FileHandle, _ = m["fileHandle"].(string)
	meta.Created = asTime(m["created"])
	meta.LastUpdated = asTime(m["lastUpdated"])
	meta.DocumentCount = asInt(m["documentCount"])
	meta.ModificationToken, _ = m["modificationToken"].(string)
	meta.SchemaVersion = asInt(m["schemaVersion"])
	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = schemaVersion
	}
	return meta, nil
}

func asTime(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
