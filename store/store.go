package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Backend names, as used in the {dbType} path segment and STORE_BACKENDS.
const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendDynamo = "dynamodb"
	BackendMemory = "memory"
)

// RootPath addresses the whole document.
const RootPath = "."

var (
	ErrNotFound        = errors.New("document not found")
	ErrWriteIncomplete = errors.New("write not acknowledged")
	ErrConflict        = errors.New("document modified concurrently")
	ErrUnavailable     = errors.New("store unavailable")
	ErrUnknownBackend  = errors.New("Unknown DB Type")
	ErrInvalidPath     = errors.New("invalid document path")
)

// Backend is one document store implementation. It owns a connection pool
// shared by all requests; sessions are checked out per request.
type Backend interface {
	Name() string
	Connect(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// ModifyFunc receives the current value at a path and returns its
// replacement.
type ModifyFunc func(current json.RawMessage) (any, error)

// Session is a scoped checkout of a backend connection. Close must be called
// on every exit path; it is idempotent.
type Session interface {
	// Get returns the JSON value at path, or ErrNotFound when the document
	// or the path does not exist.
	Get(ctx context.Context, key, path string) (json.RawMessage, error)
	// Set writes value at path. Writing the root creates or overwrites the
	// document; writing a field requires the document to exist.
	Set(ctx context.Context, key, path string, value any) error
	// Delete removes the whole document and returns the number removed.
	Delete(ctx context.Context, key string) (int64, error)
	// Batch starts a set of path writes against one document that are sent
	// in a single round trip.
	Batch(key string) Batch
	// Modify performs an optimistic read-modify-write of the value at path.
	// It returns ErrConflict if the document changed between read and write.
	Modify(ctx context.Context, key, path string, fn ModifyFunc) error
	Close() error
}

// Batch queues path writes against a single document. Exec reports one
// outcome per queued operation, in queue order; a nil outcome means the
// store acknowledged the write. The batch is not transactional: some writes
// may land while others fail.
type Batch interface {
	Set(path string, value any)
	Len() int
	Exec(ctx context.Context) ([]error, error)
}

// Field returns the top-level field addressed by path, or "" for the root.
// Only the root and single-segment paths are supported.
func Field(path string) (string, error) {
	if path == RootPath {
		return "", nil
	}
	name, ok := strings.CutPrefix(path, ".")
	if !ok || !ValidFieldName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return name, nil
}

// ValidFieldName reports whether name can be addressed as a single path
// segment in every backend.
func ValidFieldName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ".$[]*\"' ") && name != "_id"
}

// Acknowledged reports whether every outcome is a success. An empty outcome
// list is vacuously acknowledged.
func Acknowledged(outcomes []error) bool {
	for _, err := range outcomes {
		if err != nil {
			return false
		}
	}
	return true
}

type pendingSet struct {
	path  string
	value any
}

// encode marshals value to JSON once so every backend stores the same bytes.
func encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: invalid JSON value", ErrWriteIncomplete)
		}
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode value: %v", ErrWriteIncomplete, err)
		}
		return data, nil
	}
}

// decode converts a JSON value into plain Go values (maps, slices, float64,
// string, bool, nil) suitable for the Mongo and DynamoDB encoders.
func decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: decode value: %v", ErrWriteIncomplete, err)
	}
	return v, nil
}
