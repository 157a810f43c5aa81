package origin

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/haldorio/rangeproxy/events"
	"github.com/haldorio/rangeproxy/resourceid"
)

// maxRedirects caps the number of redirects Head/Fetch will follow,
// resolving spec.md §9's open ambiguity in favor of "follow up to 5,
// re-applying Range on each hop."
const maxRedirects = 5

// Options configures an HTTPSource.
type Options struct {
	// Client, if set, overrides the default http.Client (tests may
	// inject one pointed at an httptest.Server).
	Client *http.Client
	// UserAgent, if set, is sent on every request.
	UserAgent string
	// Proxy, if set, routes requests through a forward proxy.
	Proxy ProxyConfig
	// FileStats, if set, receives a FileStat the first time Head
	// resolves attributes.
	FileStats *events.Hub[FileStat]
}

// HTTPSource is the plain HTTP origin variant of spec.md §4.C: no
// mandatory extra headers, optional User-Agent and forward proxy.
type HTTPSource struct {
	url     string
	client  *http.Client
	opts    Options
	headers map[string]string

	mu     sync.Mutex
	stat   Stat
	headOK bool
	cancel context.CancelFunc

	statOnce sync.Once
}

// NewHTTPSource builds a Source for originURL with the given options.
func NewHTTPSource(originURL string, opts Options) *HTTPSource {
	client := opts.Client
	if client == nil {
		transport := &http.Transport{}
		if err := opts.Proxy.applyTo(transport); err == nil {
			client = &http.Client{Transport: transport}
		} else {
			client = &http.Client{}
		}
	}
	client.CheckRedirect = rangePreservingRedirectPolicy

	return &HTTPSource{url: originURL, client: client, opts: opts}
}

// NewHeaderAugmentedSource builds the header-augmented variant of
// spec.md §4.C for authenticated origins: identical wire semantics to
// HTTPSource, but headers is mandatory and non-empty.
func NewHeaderAugmentedSource(originURL string, headers map[string]string, opts Options) (*HeaderAugmentedSource, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("origin: header-augmented source requires at least one header")
	}
	s := NewHTTPSource(originURL, opts)
	s.headers = headers
	return &HeaderAugmentedSource{HTTPSource: s}, nil
}

// HeaderAugmentedSource is HTTPSource plus mandatory extra headers sent
// on every request, for origins requiring authentication.
type HeaderAugmentedSource struct {
	*HTTPSource
}

func rangePreservingRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) > maxRedirects {
		return fmt.Errorf("origin: stopped after %d redirects", maxRedirects)
	}
	if rng := via[0].Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}
	return nil
}

func (s *HTTPSource) applyHeaders(req *http.Request) {
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
}

func (s *HTTPSource) Head(ctx context.Context) (Stat, error) {
	s.mu.Lock()
	if s.headOK {
		stat := s.stat
		s.mu.Unlock()
		return stat, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return Stat{}, err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return Stat{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Stat{}, fmt.Errorf("origin: head failed: %s", resp.Status)
	}

	stat := Stat{TotalSize: resp.ContentLength, MimeType: resp.Header.Get("Content-Type")}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			stat.FileName = params["filename"]
		}
	}

	if stat.TotalSize > 0 {
		s.mu.Lock()
		s.stat = stat
		s.headOK = true
		s.mu.Unlock()
		s.publishFileStat(stat)
	}

	return stat, nil
}

func (s *HTTPSource) publishFileStat(stat Stat) {
	if s.opts.FileStats == nil {
		return
	}
	s.statOnce.Do(func() {
		s.opts.FileStats.Publish(FileStat{
			OriginURL: s.url,
			FileName:  stat.FileName,
			TotalSize: stat.TotalSize,
			MimeType:  stat.MimeType,
			Extension: resourceid.Extension(stat.FileName, s.url, stat.MimeType),
		})
	})
}

func (s *HTTPSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	fetchCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	s.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		// origin ignored our Range header; treat as OriginStreamError
		// per spec.md §9's resolved ambiguity.
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("origin: expected 206 Partial Content, got 200 OK (range ignored)")
	}
	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("origin: fetch failed: %s", resp.Status)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	return &cancelingBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelingBody releases the fetch's context when the caller closes the
// stream, whether that's a normal end-of-read close or an early cancel.
type cancelingBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelingBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// Cancel aborts the most recently started Fetch. Only that fetch's
// cancel function is kept, so an earlier fetch that is still open is
// not cancelled.
func (s *HTTPSource) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *HTTPSource) Dispose() {
	s.client.CloseIdleConnections()
}
