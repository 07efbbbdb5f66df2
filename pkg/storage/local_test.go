package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "tasks/t1.yaml", []byte("id: t1\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := s.Read(ctx, "tasks/t1.yaml")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "id: t1\n" {
		t.Errorf("round trip mismatch: %q", data)
	}
}

func TestReadMissingIsErrNotFound(t *testing.T) {
	s := newLocal(t)
	_, err := s.Read(context.Background(), "missing.yaml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "a.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "a.yaml.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after write")
	}
}

func TestListSkipsDirectories(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "tasks/t1.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Write(ctx, "tasks/nested/t2.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	paths, err := s.List(ctx, "tasks")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "tasks/t1.yaml" {
		t.Errorf("expected only tasks/t1.yaml, got %v", paths)
	}

	empty, err := s.List(ctx, "nothing-here")
	if err != nil || len(empty) != 0 {
		t.Errorf("listing a missing prefix should be empty, got %v, %v", empty, err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "a.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ok, err := s.Exists(ctx, "a.yaml")
	if err != nil || !ok {
		t.Fatalf("expected file to exist: %v", err)
	}

	if err := s.Delete(ctx, "a.yaml"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	ok, err = s.Exists(ctx, "a.yaml")
	if err != nil || ok {
		t.Errorf("expected file gone: ok=%v err=%v", ok, err)
	}
	if err := s.Delete(ctx, "a.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestPathTraversalStaysInsideBase(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	if err := s.Write(ctx, "../escape.yaml", []byte("x")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	parent := filepath.Dir(s.basePath)
	if _, err := os.Stat(filepath.Join(parent, "escape.yaml")); err == nil {
		t.Error("write escaped the base directory")
	}
}
