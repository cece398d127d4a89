package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFilesystemBlobStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	checksum := "abcd1234"
	content := []byte("tarball bytes")

	if err := store.Put(ctx, checksum, bytes.NewReader(content)); err != nil {
		t.Fatal(err)
	}

	rc, err := store.Get(ctx, checksum)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestFilesystemBlobStore_GetMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(context.Background(), "missing"); err == nil {
		t.Error("expected error reading a checksum that was never stored")
	}
}

func TestFilesystemBlobStore_HealthCheck(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy store, got %v", err)
	}
}
