package master

import "github.com/google/uuid"

func newToken() string {
	return uuid.NewString()
}
