package storage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ConfabulousDev/confab-insights/internal/storage"
	"github.com/ConfabulousDev/confab-insights/internal/testutil"
)

func TestS3Storage_Integration(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	s := env.Storage
	ctx := env.Ctx

	data := []byte(`[{"title":"hello","mapping":{}}]`)
	key := "exports/11111111-2222-3333-4444-555555555555/conversations.json"

	t.Run("round trip is byte identical", func(t *testing.T) {
		if err := s.Put(ctx, key, data, "application/json"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Get = %q, want %q", got, data)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "exports/missing/file.json")
		if !errors.Is(err, storage.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
	})

	t.Run("list under prefix", func(t *testing.T) {
		if err := s.Put(ctx, "elsewhere/x.json", []byte("{}"), "application/json"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		objects, err := s.List(ctx, "exports/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(objects) != 1 || objects[0].Key != key {
			t.Fatalf("List = %+v, want only %s", objects, key)
		}
		if objects[0].Size != int64(len(data)) {
			t.Errorf("Size = %d, want %d", objects[0].Size, len(data))
		}
	})
}
