package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	bolt "go.etcd.io/bbolt"
)

var (
	objectsBucket  = []byte("objects")
	modifiedBucket = []byte("modified")
)

// BoltStorage keeps objects in a single local bbolt file. Object bytes and
// their modification times live in separate buckets under the same key.
type BoltStorage struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStorage opens (or creates) the database at path.
func NewBoltStorage(path string) (*BoltStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open %s: database is locked by another process: %w", path, ErrUnavailable)
		}
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{objectsBucket, modifiedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return &BoltStorage{db: db, now: time.Now}, nil
}

// Close releases the database file.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// Put stores data under key, replacing any existing object. The content type
// is not retained; readers sniff the bytes.
func (s *BoltStorage) Put(ctx context.Context, key string, data []byte, _ string) error {
	_, span := tracer.Start(ctx, "storage.put",
		trace.WithAttributes(
			attribute.String("storage.key", key),
			attribute.Int("file.size", len(data)),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, fmt.Errorf("upload: %w", err))
	}

	stamp := make([]byte, 8)
	binary.BigEndian.PutUint64(stamp, uint64(s.now().UnixNano()))

	err := s.db.Update(func(tx *bolt.Tx) error {
		// Put keeps a reference to data until commit, which happens before
		// Update returns, so the caller owns data again afterwards.
		if err := tx.Bucket(objectsBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(modifiedBucket).Put([]byte(key), stamp)
	})
	if err != nil {
		return s.fail(span, classifyBoltError(err, "upload"))
	}
	return nil
}

// Get retrieves the bytes stored under key.
func (s *BoltStorage) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := tracer.Start(ctx, "storage.get",
		trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, s.fail(span, fmt.Errorf("download: %w", err))
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("download %s: %w", key, ErrObjectNotFound)
		}
		// v points into the mmap and is only valid inside this transaction.
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, classifyBoltError(err, "download"))
	}

	span.SetAttributes(attribute.Int("file.size", len(data)))
	return data, nil
}

// List returns every object whose key starts with prefix, sorted by key.
func (s *BoltStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	_, span := tracer.Start(ctx, "storage.list",
		trace.WithAttributes(attribute.String("storage.prefix", prefix)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, s.fail(span, fmt.Errorf("list: %w", err))
	}

	var objects []ObjectInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		modified := tx.Bucket(modifiedBucket)
		c := tx.Bucket(objectsBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			info := ObjectInfo{Key: string(k), Size: int64(len(v))}
			if stamp := modified.Get(k); len(stamp) == 8 {
				info.LastModified = time.Unix(0, int64(binary.BigEndian.Uint64(stamp))).UTC()
			}
			objects = append(objects, info)
			if len(objects) > MaxListObjects {
				return fmt.Errorf("list: %w (limit: %d)", ErrTooManyObjects, MaxListObjects)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, classifyBoltError(err, "list"))
	}

	span.SetAttributes(attribute.Int("objects.count", len(objects)))
	return objects, nil
}

func (s *BoltStorage) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// classifyBoltError maps bbolt failures onto the storage sentinels.
func classifyBoltError(err error, operation string) error {
	switch {
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrTooManyObjects):
		return err
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTimeout):
		return fmt.Errorf("%s: %w", operation, ErrUnavailable)
	case errors.Is(err, bolt.ErrDatabaseReadOnly), errors.Is(err, bolt.ErrTxNotWritable):
		return fmt.Errorf("%s: %w", operation, ErrAccessDenied)
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
