package contentbase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestEncryptedBackend_Compliance(t *testing.T) {
	backend, err := NewEncryptedBackend(NewFilesystemBackend(t.TempDir()), testKey(1))
	if err != nil {
		t.Fatalf("NewEncryptedBackend failed: %v", err)
	}
	runBackendCompliance(t, backend, "compliance/")
}

func TestEncryptedBackend_InvalidKey(t *testing.T) {
	_, err := NewEncryptedBackend(NewFilesystemBackend(t.TempDir()), []byte("short"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEncryptedBackend_CiphertextAtRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, _ := NewEncryptedBackend(NewFilesystemBackend(dir), testKey(1))

	plaintext := []byte(`{"title":"secret"}`)
	if err := backend.Put(ctx, "book/1.json", plaintext); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "book", "1.json"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Error("plaintext stored on disk")
	}

	got, err := backend.Get(ctx, "book/1.json")
	if err != nil || !bytes.Equal(got, plaintext) {
		t.Errorf("Get = (%q, %v)", got, err)
	}
}

func TestEncryptedBackend_RejectsWrongKeyAndMovedBlobs(t *testing.T) {
	ctx := context.Background()
	inner := NewFilesystemBackend(t.TempDir())
	backend, _ := NewEncryptedBackend(inner, testKey(1))

	if err := backend.Put(ctx, "a.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	other, _ := NewEncryptedBackend(inner, testKey(2))
	if _, err := other.Get(ctx, "a.json"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("wrong key: expected ErrInvalidData, got %v", err)
	}

	sealed, _ := inner.Get(ctx, "a.json")
	if err := inner.Put(ctx, "b.json", sealed); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if _, err := backend.Get(ctx, "b.json"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("moved blob: expected ErrInvalidData, got %v", err)
	}
}

func TestEncryptedBackend_UnderDocumentStore(t *testing.T) {
	ctx := context.Background()
	backend, _ := NewEncryptedBackend(NewFilesystemBackend(t.TempDir()), testKey(3))
	store := NewBackendDocumentStore(backend, nil, nil)

	v1, err := store.Put(ctx, "book", &Document{ID: "1", Data: []byte(`{"n":1}`)}, "", WriteCreate)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Put(ctx, "book", &Document{ID: "1", Data: []byte(`{"n":2}`)}, v1, WriteIfMatch); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := store.Put(ctx, "book", &Document{ID: "1", Data: []byte(`{"n":3}`)}, v1, WriteIfMatch); !IsConflict(err) {
		t.Errorf("stale update: expected conflict, got %v", err)
	}

	doc, err := store.Get(ctx, "book", "1")
	if err != nil || string(doc.Data) != `{"n":2}` {
		t.Errorf("Get = (%+v, %v)", doc, err)
	}
}
