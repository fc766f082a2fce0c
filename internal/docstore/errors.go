package docstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
)

// ErrNoObjectKey means a loaded record carries no object key, so an edit
// cannot know which object to replace.
var ErrNoObjectKey = eris.New("docstore: loaded record has no object key")

// StorageError is a failed call to the object store. Status is the HTTP
// status the store reported, or 0 when none is known.
type StorageError struct {
	Op     string
	Key    string
	Status int
	Err    error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("docstore: %s %s", e.Op, e.Key)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFound reports whether the object did not exist.
func (e *StorageError) NotFound() bool { return e.Status == http.StatusNotFound }

// ConflictError is returned by a conditional put whose expected ETag no
// longer matches the stored object.
type ConflictError struct {
	Key      string
	Expected string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("docstore: %s changed since it was loaded (expected etag %s)", e.Key, e.Expected)
}

func notFound(op, key string) *StorageError {
	return &StorageError{Op: op, Key: key, Status: http.StatusNotFound, Err: eris.New("object not found")}
}

// ETag returns the quoted hex MD5 of body, the form S3 uses for single-part
// uploads.
func ETag(body []byte) string {
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
