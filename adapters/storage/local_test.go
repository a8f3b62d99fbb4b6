package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/fetchvault/adapters/storage"
)

func TestLocal_Put(t *testing.T) {
	baseDir := t.TempDir()
	srcDir := t.TempDir()
	s := storage.NewLocal(baseDir, "/downloads")

	src := filepath.Join(srcDir, "part1.zip")
	if err := os.WriteFile(src, []byte("zip bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := s.Put(context.Background(), "b1/b1_part1.zip", src)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "/downloads/b1/b1_part1.zip" {
		t.Errorf("ref = %q", ref)
	}

	data, err := os.ReadFile(filepath.Join(baseDir, "b1", "b1_part1.zip"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "zip bytes" {
		t.Errorf("stored content = %q", data)
	}

	// The staged source is moved, not duplicated.
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still present: %v", err)
	}
}

func TestLocal_PutMissingSource(t *testing.T) {
	s := storage.NewLocal(t.TempDir(), "")

	if _, err := s.Put(context.Background(), "k", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("Put succeeded with a missing source file")
	}
}

func TestNewLocal_DefaultBaseURL(t *testing.T) {
	baseDir := t.TempDir()
	s := storage.NewLocal(baseDir, "")

	src := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ref, err := s.Put(context.Background(), "f", src)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "/downloads/f" {
		t.Errorf("ref = %q", ref)
	}
}
