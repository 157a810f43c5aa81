package resource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/haldorio/rangeproxy/origin"
	"github.com/haldorio/rangeproxy/rangeset"
)

func newTestResource(t *testing.T) (*Resource, string) {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "abc.video")
	metaPath := filepath.Join(dir, "abc.meta")

	f, err := os.Create(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(1024); err != nil {
		t.Fatal(err)
	}

	set := rangeset.New(1024)
	r := New("abc", "http://example.test/a.bin", set, f, metaPath, nopSource{}, Options{})
	return r, metaPath
}

type nopSource struct{}

func (nopSource) Head(ctx context.Context) (origin.Stat, error) { return origin.Stat{}, nil }
func (nopSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	return nil, nil
}
func (nopSource) Cancel()  {}
func (nopSource) Dispose() {}

type cancelCountingSource struct {
	nopSource
	cancels int
}

func (s *cancelCountingSource) Cancel() { s.cancels++ }

func TestIngestChunkMarksRangeAndPersists(t *testing.T) {
	r, metaPath := newTestResource(t)
	defer r.Close()

	if err := r.IngestChunk(0, []byte("0123456789")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if !r.Contains(0, 9) {
		t.Fatal("expected ingested range to be contained")
	}
	if r.Contains(10, 19) {
		t.Fatal("expected un-ingested range to not be contained")
	}

	if err := r.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(metaPath); err != nil {
		t.Fatalf("expected meta file to exist: %v", err)
	}
}

func TestReadAtReturnsWrittenBytes(t *testing.T) {
	r, _ := newTestResource(t)
	defer r.Close()

	if err := r.IngestChunk(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestStopClearsLivenessAndCancelsSource(t *testing.T) {
	r, _ := newTestResource(t)
	defer r.Close()
	src := &cancelCountingSource{}
	r.source = src

	if !r.IsLive() {
		t.Fatal("expected resource to start live")
	}
	r.Stop()
	if r.IsLive() {
		t.Fatal("expected Stop to clear liveness")
	}
	if src.cancels != 1 {
		t.Fatalf("expected Stop to cancel the source once, got %d", src.cancels)
	}
	r.Resume()
	if !r.IsLive() {
		t.Fatal("expected Resume to restore liveness")
	}
}

func TestSaveNowIsNoopWhenNotDirty(t *testing.T) {
	r, metaPath := newTestResource(t)
	defer r.Close()

	if err := r.SaveNow(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(metaPath); !os.IsNotExist(err) {
		t.Fatal("expected no meta file to be written when never dirty")
	}
}
