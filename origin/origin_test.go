package origin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

var testData = bytes.Repeat([]byte("0123456789abcdef"), 1024) // 16KiB

func newRangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(testData)))
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("Content-Disposition", `attachment; filename="movie.mp4"`)
			w.WriteHeader(http.StatusOK)
			return
		}

		rangeHeader := r.Header.Get("Range")
		var start, end int64 = 0, int64(len(testData)) - 1
		if rangeHeader != "" {
			fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(testData[start : end+1])
	}))
}

func TestHTTPSourceHead(t *testing.T) {
	srv := newRangeServer(t)
	defer srv.Close()

	src := NewHTTPSource(srv.URL, Options{})
	stat, err := src.Head(context.Background())
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if stat.TotalSize != int64(len(testData)) {
		t.Fatalf("expected total size %d, got %d", len(testData), stat.TotalSize)
	}
	if stat.FileName != "movie.mp4" {
		t.Fatalf("expected filename movie.mp4, got %q", stat.FileName)
	}
}

func TestHTTPSourceHeadCachesResult(t *testing.T) {
	var headCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headCount++
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, Options{})
	if _, err := src.Head(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Head(context.Background()); err != nil {
		t.Fatal(err)
	}
	if headCount != 1 {
		t.Fatalf("expected 1 network HEAD, got %d", headCount)
	}
}

func TestHTTPSourceFetchRange(t *testing.T) {
	srv := newRangeServer(t)
	defer srv.Close()

	src := NewHTTPSource(srv.URL, Options{})
	body, err := src.Fetch(context.Background(), 10, 19)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testData[10:20]) {
		t.Fatalf("got %q, want %q", got, testData[10:20])
	}
}

func TestHTTPSourceFetchRejectsNonRangeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(testData)))
		w.WriteHeader(http.StatusOK)
		w.Write(testData)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, Options{})
	_, err := src.Fetch(context.Background(), 0, 9)
	if err == nil {
		t.Fatal("expected error for non-range-honoring 200 response")
	}
}

func TestNewHeaderAugmentedSourceRequiresHeaders(t *testing.T) {
	if _, err := NewHeaderAugmentedSource("http://example.test", nil, Options{}); err == nil {
		t.Fatal("expected error for empty headers")
	}
}

func TestHeaderAugmentedSourceSendsHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("abcd"))
	}))
	defer srv.Close()

	src, err := NewHeaderAugmentedSource(srv.URL, map[string]string{"Authorization": "Bearer tok"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	body, err := src.Fetch(context.Background(), 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	body.Close()

	if gotAuth != "Bearer tok" {
		t.Fatalf("expected Authorization header forwarded, got %q", gotAuth)
	}
}

func TestSniffKnownSignatures(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want string
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0, 0, 0, 0}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0, 0, 0, 0, 0}, "image/jpeg"},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0, 0, 0, 0}, "video/webm"},
		{"mp4 isom", append([]byte{0, 0, 0, 0x18}, []byte("ftypisom")...), "video/mp4"},
		{"mp4 qt", append([]byte{0, 0, 0, 0x14}, []byte("ftypqt  ")...), "video/mp4"},
		{"unknown", []byte{0, 0, 0, 0, 0, 0, 0, 0}, ""},
	}
	for _, c := range cases {
		if got := Sniff(c.head); got != c.want {
			t.Errorf("%s: Sniff() = %q, want %q", c.name, got, c.want)
		}
	}
}
