// Package server implements the loopback HTTP range responder of
// spec.md §4.D: a single /stream route that interleaves cached-file
// reads and origin fetches to produce one continuous ranged response
// while populating the cache. Generalizes the teacher's http.Server
// usage pattern (DownloadManager wraps a plain *http.Client; here a
// plain *http.Server is wrapped the same way) into a request handler
// driven by resource.Resource instead of a direct io.ReaderAt.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/resource"
)

// ChunkSize is the hybrid loop's window size (CHUNK in spec.md §4.D).
const ChunkSize = 1024 * 1024

// fetchReadSize is the buffer size used to drain an origin fetch
// stream; origin byte-chunks are whatever size the network produces,
// bounded by this read buffer.
const fetchReadSize = 64 * 1024

const defaultMimeType = "video/mp4"

// Provider is the capability HybridServer needs from the lifecycle
// manager: resolve a URL to a Resource (creating it on first sight,
// including the origin HEAD and sparse-file truncate of spec.md §4.D
// step 2), and ensure a completer is running for it.
type Provider interface {
	// Acquire returns the Resource for originURL, creating it (HEAD +
	// sparse-file allocation) if this is the first time the URL is
	// seen. An error here is always treated as an origin failure (502).
	Acquire(ctx context.Context, originURL string) (*resource.Resource, error)

	// EnsureCompleter starts a background completer for res if one
	// isn't already running; idempotent, safe to call on every request.
	EnsureCompleter(res *resource.Resource)
}

// Options configures a HybridServer.
type Options struct {
	Logger *zap.Logger
}

// HybridServer is the loopback range responder.
type HybridServer struct {
	httpServer *http.Server
	listener   net.Listener
	provider   Provider
	logger     *zap.Logger
}

// New builds a HybridServer bound to 127.0.0.1:port (port 0 picks an
// ephemeral port, useful for tests).
func New(port int, provider Provider, opts Options) (*HybridServer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("server: listen: %w", err)
	}

	s := &HybridServer{
		provider: provider,
		logger:   logger,
		listener: ln,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.httpServer = &http.Server{Handler: mux}
	return s, nil
}

// Addr returns the bound address, e.g. "127.0.0.1:8080".
func (s *HybridServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop. Blocks until Shutdown is called.
func (s *HybridServer) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *HybridServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *HybridServer) handleStream(w http.ResponseWriter, r *http.Request) {
	originURL := r.URL.Query().Get("url")
	if originURL == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	res, err := s.provider.Acquire(r.Context(), originURL)
	if err != nil {
		s.logger.Warn("origin acquire failed", zap.String("url", originURL), zap.Error(err))
		http.Error(w, "origin unavailable", http.StatusBadGateway)
		return
	}

	totalSize := res.TotalSize()
	start, end, ok := parseRange(r.Header.Get("Range"), totalSize)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", totalSize))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	mimeType := res.MimeType()
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, totalSize))
	w.WriteHeader(http.StatusPartialContent)

	flusher, _ := w.(http.Flusher)

	if err := s.serveHybridLoop(r.Context(), w, res, start, end); err != nil {
		s.logger.Warn("hybrid loop aborted", zap.String("resource_id", res.ID()), zap.Error(err))
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	s.provider.EnsureCompleter(res)
	res.Wake()
}

// serveHybridLoop implements spec.md §4.D's body-production loop:
// cache-hit windows are read straight from the data file, cache-miss
// windows are streamed from the origin, teed to the response and to the
// data file chunk by chunk as they arrive.
func (s *HybridServer) serveHybridLoop(ctx context.Context, w http.ResponseWriter, res *resource.Resource, start, end int64) error {
	flusher, _ := w.(http.Flusher)
	pos := start

	for pos <= end {
		winEnd := pos + ChunkSize - 1
		if winEnd > end {
			winEnd = end
		}

		if res.Contains(pos, winEnd) {
			if err := s.serveCached(w, res, pos, winEnd); err != nil {
				return err
			}
		} else {
			if err := s.serveFromOrigin(ctx, w, res, pos, winEnd); err != nil {
				return err
			}
		}

		if flusher != nil {
			flusher.Flush()
		}
		pos = winEnd + 1
	}
	return nil
}

func (s *HybridServer) serveCached(w io.Writer, res *resource.Resource, start, end int64) error {
	buf := make([]byte, end-start+1)
	if _, err := res.ReadAt(buf, start); err != nil {
		return fmt.Errorf("server: read cached range [%d,%d]: %w", start, end, err)
	}
	_, err := w.Write(buf)
	return err
}

func (s *HybridServer) serveFromOrigin(ctx context.Context, w io.Writer, res *resource.Resource, start, end int64) error {
	body, err := res.Source().Fetch(ctx, start, end)
	if err != nil {
		return fmt.Errorf("server: origin fetch [%d,%d]: %w", start, end, err)
	}
	defer body.Close()

	buf := make([]byte, fetchReadSize)
	off := start
	for off <= end {
		want := int64(len(buf))
		if remain := end - off + 1; remain < want {
			want = remain
		}
		n, err := io.ReadFull(body, buf[:want])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ierr := res.IngestChunk(off, buf[:n]); ierr != nil {
				return ierr
			}
			off += int64(n)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("server: origin stream [%d,%d]: %w", start, end, err)
		}
	}
	if off <= end {
		return fmt.Errorf("server: origin stream [%d,%d] ended early at %d", start, end, off)
	}
	return nil
}

// parseRange accepts "bytes=s-e" or "bytes=s-"; a missing or
// unparseable header is treated as "bytes=0-" per spec.md §4.D step 3.
// ok is false only when the parsed range is unsatisfiable (s > end).
func parseRange(header string, totalSize int64) (start, end int64, ok bool) {
	start, end = 0, totalSize-1

	if header != "" && strings.HasPrefix(header, "bytes=") {
		spec := strings.TrimPrefix(header, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) == 2 {
			if parts[0] != "" {
				if v, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
					start = v
				}
			}
			if parts[1] != "" {
				if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					end = v
				}
			}
		}
	}

	if end >= totalSize {
		end = totalSize - 1
	}
	if start < 0 || start > end {
		return 0, 0, false
	}
	return start, end, true
}
