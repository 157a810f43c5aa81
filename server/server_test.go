package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haldorio/rangeproxy/origin"
	"github.com/haldorio/rangeproxy/rangeset"
	"github.com/haldorio/rangeproxy/resource"
)

// fakeOriginSource serves Fetch from an in-memory buffer, standing in
// for origin.HTTPSource the way the teacher's tests stand in an
// httptest.Server for the real origin.
type fakeOriginSource struct {
	data []byte
}

func (f *fakeOriginSource) Head(ctx context.Context) (origin.Stat, error) {
	return origin.Stat{TotalSize: int64(len(f.data))}, nil
}

func (f *fakeOriginSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data[start : end+1])), nil
}

func (f *fakeOriginSource) Cancel()  {}
func (f *fakeOriginSource) Dispose() {}

type fakeProvider struct {
	mu        sync.Mutex
	resources map[string]*resource.Resource
	completed map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{resources: make(map[string]*resource.Resource), completed: make(map[string]bool)}
}

func (p *fakeProvider) addResource(t *testing.T, dir, originURL string, data []byte) *resource.Resource {
	t.Helper()
	id := fmt.Sprintf("r%d", len(p.resources))
	dataPath := filepath.Join(dir, id+".video")

	f, err := os.Create(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		t.Fatal(err)
	}

	set := rangeset.New(int64(len(data)))
	res := resource.New(id, originURL, set, f, filepath.Join(dir, id+".meta"), &fakeOriginSource{data: data}, resource.Options{})
	p.resources[originURL] = res
	return res
}

func (p *fakeProvider) Acquire(ctx context.Context, originURL string) (*resource.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.resources[originURL]
	if !ok {
		return nil, fmt.Errorf("no resource registered for %q", originURL)
	}
	return res, nil
}

func (p *fakeProvider) EnsureCompleter(res *resource.Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[res.ID()] = true
}

func newTestData(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

func startTestServer(t *testing.T, provider *fakeProvider) *HybridServer {
	t.Helper()
	srv, err := New(0, provider, Options{})
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func TestStreamFullRangeWhenNoRangeHeader(t *testing.T) {
	dir := t.TempDir()
	data := newTestData(2048)
	provider := newFakeProvider()
	provider.addResource(t, dir, "http://example.test/a.bin", data)

	srv := startTestServer(t, provider)

	resp, err := http.Get(fmt.Sprintf("http://%s/stream?url=%s", srv.Addr(), "http://example.test/a.bin"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("body mismatch")
	}
	if resp.Header.Get("Content-Range") != fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data)) {
		t.Fatalf("unexpected Content-Range: %s", resp.Header.Get("Content-Range"))
	}
}

func TestStreamPartialRange(t *testing.T) {
	dir := t.TempDir()
	data := newTestData(4096)
	provider := newFakeProvider()
	provider.addResource(t, dir, "http://example.test/b.bin", data)

	srv := startTestServer(t, provider)

	req, _ := http.NewRequest("GET", fmt.Sprintf("http://%s/stream?url=%s", srv.Addr(), "http://example.test/b.bin"), nil)
	req.Header.Set("Range", "bytes=100-199")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[100:200]) {
		t.Fatal("partial body mismatch")
	}
}

func TestStreamMissingURLReturns400(t *testing.T) {
	provider := newFakeProvider()
	srv := startTestServer(t, provider)

	resp, err := http.Get(fmt.Sprintf("http://%s/stream", srv.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStreamUnknownURLReturns502(t *testing.T) {
	provider := newFakeProvider()
	srv := startTestServer(t, provider)

	resp, err := http.Get(fmt.Sprintf("http://%s/stream?url=%s", srv.Addr(), "http://example.test/missing.bin"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestParseRangeUnsatisfiable(t *testing.T) {
	if _, _, ok := parseRange("bytes=500-100", 1000); ok {
		t.Fatal("expected unsatisfiable range to report ok=false")
	}
}

func TestParseRangeClampsEnd(t *testing.T) {
	start, end, ok := parseRange("bytes=0-999999", 1000)
	if !ok || start != 0 || end != 999 {
		t.Fatalf("expected clamp to 0-999, got %d-%d ok=%v", start, end, ok)
	}
}

func TestParseRangeDefaultsToFullFile(t *testing.T) {
	start, end, ok := parseRange("", 1000)
	if !ok || start != 0 || end != 999 {
		t.Fatalf("expected default 0-999, got %d-%d ok=%v", start, end, ok)
	}
}
