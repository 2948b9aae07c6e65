// Package storage persists uploaded exports as opaque byte blobs.
package storage

import (
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("confab-insights/storage")

// Sentinel errors for storage operations
var (
	// ErrObjectNotFound indicates the requested object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions for the operation
	ErrAccessDenied = errors.New("access denied")

	// ErrNetworkError indicates a network connectivity issue
	ErrNetworkError = errors.New("network error")

	// ErrUnavailable indicates the store cannot serve requests (closed or locked)
	ErrUnavailable = errors.New("storage unavailable")

	// ErrTooManyObjects indicates a listing exceeded MaxListObjects
	ErrTooManyObjects = errors.New("too many objects under prefix")
)

// MaxListObjects bounds a single List call.
const MaxListObjects = 100000

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Latest returns the most recently modified object. Ties go to the
// lexicographically greater key so the choice is stable.
func Latest(objects []ObjectInfo) (ObjectInfo, bool) {
	if len(objects) == 0 {
		return ObjectInfo{}, false
	}
	best := objects[0]
	for _, o := range objects[1:] {
		if o.LastModified.After(best.LastModified) ||
			(o.LastModified.Equal(best.LastModified) && o.Key > best.Key) {
			best = o
		}
	}
	return best, true
}

func sortByKey(objects []ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}
