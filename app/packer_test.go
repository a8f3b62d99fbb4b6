package app

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/fetchvault/domain/archive"
	"github.com/rs/zerolog"
)

func writeTestFile(t *testing.T, dir, name string, size int) archive.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatal(err)
	}
	return archive.File{Path: path, Name: name, Size: int64(size)}
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPacker_SplitsAtCeiling(t *testing.T) {
	srcDir := t.TempDir()
	objects := newStubObjectStore()
	p := NewPacker(objects, t.TempDir(), 250, newTestCollector(), zerolog.Nop())

	files := []archive.File{
		writeTestFile(t, srcDir, "a.mp4", 100),
		writeTestFile(t, srcDir, "b.mp4", 100),
		writeTestFile(t, srcDir, "c.mp4", 100),
	}

	refs, err := p.Pack(context.Background(), "b1", files)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("parts = %d, want 2", len(refs))
	}
	if refs[0].Index != 1 || refs[1].Index != 2 {
		t.Errorf("indexes = %d, %d", refs[0].Index, refs[1].Index)
	}
	if refs[0].Ref != "obj://b1/b1_part1.zip" {
		t.Errorf("Ref = %q", refs[0].Ref)
	}
	if refs[0].Size <= 0 {
		t.Errorf("Size = %d", refs[0].Size)
	}

	uploads := objects.uploaded()
	if names := zipNames(t, uploads["b1/b1_part1.zip"]); len(names) != 2 || names[0] != "a.mp4" || names[1] != "b.mp4" {
		t.Errorf("part 1 contents = %v", names)
	}
	if names := zipNames(t, uploads["b1/b1_part2.zip"]); len(names) != 1 || names[0] != "c.mp4" {
		t.Errorf("part 2 contents = %v", names)
	}
}

func TestPacker_OversizedFileGetsOwnPart(t *testing.T) {
	srcDir := t.TempDir()
	objects := newStubObjectStore()
	p := NewPacker(objects, t.TempDir(), 250, newTestCollector(), zerolog.Nop())

	files := []archive.File{
		writeTestFile(t, srcDir, "huge.mp4", 400),
		writeTestFile(t, srcDir, "small.mp4", 50),
	}

	refs, err := p.Pack(context.Background(), "b1", files)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("parts = %d, want 2", len(refs))
	}

	uploads := objects.uploaded()
	if names := zipNames(t, uploads["b1/b1_part1.zip"]); len(names) != 1 || names[0] != "huge.mp4" {
		t.Errorf("part 1 contents = %v", names)
	}
}

func TestPacker_SkipsMissingFiles(t *testing.T) {
	srcDir := t.TempDir()
	objects := newStubObjectStore()
	p := NewPacker(objects, t.TempDir(), 0, newTestCollector(), zerolog.Nop())

	files := []archive.File{
		writeTestFile(t, srcDir, "a.mp4", 100),
		{Path: filepath.Join(srcDir, "vanished.mp4"), Name: "vanished.mp4", Size: 100},
	}

	refs, err := p.Pack(context.Background(), "b1", files)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("parts = %d, want 1", len(refs))
	}
	if names := zipNames(t, objects.uploaded()["b1/b1_part1.zip"]); len(names) != 1 || names[0] != "a.mp4" {
		t.Errorf("contents = %v", names)
	}
}

func TestPacker_NothingToPack(t *testing.T) {
	objects := newStubObjectStore()
	p := NewPacker(objects, t.TempDir(), 0, newTestCollector(), zerolog.Nop())

	refs, err := p.Pack(context.Background(), "b1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if refs != nil {
		t.Errorf("refs = %v, want nil", refs)
	}
	if len(objects.uploaded()) != 0 {
		t.Error("uploads happened for an empty batch")
	}
}
