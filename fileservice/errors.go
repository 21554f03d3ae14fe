package fileservice

import "errors"

// ErrBackendUnavailable is returned when the circuit breaker is open or the
// underlying store.BlobStoreDriver call itself failed.
var ErrBackendUnavailable = errors.New("fileservice: backend unavailable")

// ErrNotExist is returned by Read when the handle has never been written.
var ErrNotExist = errors.New("fileservice: blob does not exist")

// ErrAlreadyExists is returned by Create when the handle is already taken.
var ErrAlreadyExists = errors.New("fileservice: blob already exists")
