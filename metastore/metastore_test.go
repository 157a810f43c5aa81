package metastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haldorio/rangeproxy/rangeset"
)

func TestSaveLoadListVariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.meta")

	set := rangeset.New(1024)
	set.Insert(0, 99)
	set.Insert(200, 299)

	attrs := Attrs{
		ID:        "abc",
		OriginURL: "http://example.test/a.bin",
		TotalSize: 1024,
		MimeType:  "application/octet-stream",
		FileName:  "a.bin",
	}

	if err := Save(path, attrs, set); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotAttrs, gotSet, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotAttrs != attrs {
		t.Fatalf("attrs mismatch: got %+v, want %+v", gotAttrs, attrs)
	}
	if gotSet.Kind() != rangeset.KindList {
		t.Fatalf("expected list kind, got %v", gotSet.Kind())
	}
	if !gotSet.Contains(0, 99) || !gotSet.Contains(200, 299) {
		t.Fatal("loaded set missing expected ranges")
	}
	if gotSet.Contains(100, 199) {
		t.Fatal("loaded set claims bytes that were never inserted")
	}
}

func TestSaveLoadBitmapVariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.meta")

	const total = 200 * 1024 * 1024
	set := rangeset.New(total)
	set.Insert(0, rangeset.BlockSize-1)
	set.Insert(100*1024*1024, 100*1024*1024+rangeset.BlockSize-1)

	attrs := Attrs{ID: "big", OriginURL: "http://example.test/big.bin", TotalSize: total}

	if err := Save(path, attrs, set); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotAttrs, gotSet, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotAttrs.TotalSize != total {
		t.Fatalf("total size mismatch: %d", gotAttrs.TotalSize)
	}
	if gotSet.Kind() != rangeset.KindBitmap {
		t.Fatalf("expected bitmap kind, got %v", gotSet.Kind())
	}
	if !gotSet.Contains(0, rangeset.BlockSize-1) {
		t.Fatal("loaded bitmap missing first block")
	}
	if gotSet.Contains(rangeset.BlockSize, 2*rangeset.BlockSize-1) {
		t.Fatal("loaded bitmap claims an unset block")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.meta")

	set := rangeset.New(10)
	set.Insert(0, 9)
	if err := Save(path, Attrs{ID: "x", TotalSize: 10}, set); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be removed after successful save")
	}
}

func TestLoadCorruptMetaReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.meta")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, set, err := Load(path)
	if err == nil {
		t.Fatal("expected error loading corrupt meta")
	}
	if set != nil {
		t.Fatal("expected nil set on corrupt load")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.meta"))
	if err == nil {
		t.Fatal("expected error loading missing meta file")
	}
}
