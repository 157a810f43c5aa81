// Package rangeproxy is the local caching range proxy's programmatic
// surface (spec.md §6): a single embedding application calls Init once
// and drives everything else through the returned *Handle. Generalizes
// the teacher's package-level DefaultDownloadManager singleton
// (manager.go's var DefaultDownloadManager = NewDownloadManager()) into
// an explicit Handle so DoubleInit can be idempotent without hiding
// state behind an unexported global the caller can't inspect.
package rangeproxy

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/manager"
	"github.com/haldorio/rangeproxy/origin"
	"github.com/haldorio/rangeproxy/resource"
	"github.com/haldorio/rangeproxy/resourceid"
	"github.com/haldorio/rangeproxy/server"
)

// Config configures Init.
type Config struct {
	Port           int
	StorageDir     string // required
	CollectionsDir string // defaults to <StorageDir>/../collections
	UserAgent      string
	Proxy          origin.ProxyConfig
	RequestHeaders map[string]string
	Logger         *zap.Logger
}

// Handle is the live system returned by Init: the manager, the
// loopback server, and the event hubs callers subscribe to.
type Handle struct {
	mgr    *manager.Manager
	srv    *server.HybridServer
	logger *zap.Logger
}

var (
	globalMu sync.Mutex
	global   *Handle
)

// Init creates the storage directory, starts the loopback HybridServer,
// runs startup validation, and returns a Handle. A second call is
// idempotent: it returns the existing Handle rather than erroring or
// starting a second server, matching spec.md §7's DoubleInit
// disposition.
func Init(cfg Config) (*Handle, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return global, nil
	}

	if cfg.StorageDir == "" {
		return nil, ErrBadArgument
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mgr, err := manager.New(manager.Options{
		StorageDir:     cfg.StorageDir,
		CollectionsDir: cfg.CollectionsDir,
		UserAgent:      cfg.UserAgent,
		Proxy:          cfg.Proxy,
		RequestHeaders: cfg.RequestHeaders,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("rangeproxy: init manager: %w", err)
	}

	if err := mgr.LoadStorageDir(); err != nil {
		return nil, fmt.Errorf("rangeproxy: startup validation: %w", err)
	}

	srv, err := server.New(cfg.Port, mgr, server.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("rangeproxy: start server: %w", err)
	}
	go srv.Serve()

	global = &Handle{mgr: mgr, srv: srv, logger: logger}
	return global, nil
}

// ProxyURLFor returns the loopback URL a player should address instead
// of originURL, per spec.md §6.
func (h *Handle) ProxyURLFor(originURL string) string {
	return fmt.Sprintf("http://%s/stream?url=%s", h.srv.Addr(), url.QueryEscape(originURL))
}

// ProgressFor returns the current cache percentage for originURL, or an
// error if the resource has never been seen (spec.md gives no sentinel
// for "unknown resource" here; a plain error is the idiomatic choice).
func (h *Handle) ProgressFor(originURL string) (float64, error) {
	for _, info := range h.mgr.ListAll() {
		if info.OriginURL == originURL {
			return info.Progress, nil
		}
	}
	return 0, fmt.Errorf("rangeproxy: unknown resource for url %q", originURL)
}

// ProgressStream subscribes to every resource's progress updates.
// Callers must invoke the returned unsubscribe function when done.
func (h *Handle) ProgressStream() (<-chan resource.Progress, func()) {
	return h.mgr.ProgressHub().Subscribe()
}

// FileStatsFor subscribes to file-attribute announcements. The stream
// is shared across all resources; callers filter by FileStat.OriginURL.
func (h *Handle) FileStatsFor() (<-chan origin.FileStat, func()) {
	return h.mgr.FileStatHub().Subscribe()
}

// StartBackground ensures a completer is running for originURL,
// acquiring (creating, if new) the Resource first.
func (h *Handle) StartBackground(ctx context.Context, originURL string) error {
	res, err := h.mgr.Acquire(ctx, originURL)
	if err != nil {
		return &OriginError{ResourceID: resourceid.For(originURL), Err: err}
	}
	h.mgr.EnsureCompleter(res)
	return nil
}

// StopBackground pauses originURL's completer and cancels any in-flight
// origin fetch, without removing the resource or its cached bytes.
func (h *Handle) StopBackground(originURL string) error {
	res, ok := h.lookupByURL(originURL)
	if !ok {
		return fmt.Errorf("rangeproxy: unknown resource for url %q", originURL)
	}
	res.Stop()
	return res.SaveNow()
}

// ResumeAll restarts completers for every currently tracked resource.
func (h *Handle) ResumeAll() {
	for _, info := range h.mgr.ListAll() {
		res, ok := h.lookupByID(info.ID)
		if !ok {
			continue
		}
		res.Resume()
		h.mgr.EnsureCompleter(res)
	}
}

// Cancel is StopBackground; kept as a distinct name to match spec.md
// §6's cancel(origin_url) verbatim.
func (h *Handle) Cancel(originURL string) error {
	return h.StopBackground(originURL)
}

// ListAll returns every currently tracked resource's summary.
func (h *Handle) ListAll() []manager.DownloadInfo {
	return h.mgr.ListAll()
}

// ClearAll removes every tracked resource and anything left in storage.
func (h *Handle) ClearAll() error {
	return h.mgr.ClearAll()
}

// RemoveByURL removes the resource identified by originURL.
func (h *Handle) RemoveByURL(originURL string) error {
	return h.mgr.RemoveByURL(originURL)
}

// RemoveByID removes the resource identified by id.
func (h *Handle) RemoveByID(id string) error {
	return h.mgr.RemoveByID(id)
}

// Export copies the completed file for originURL to target. Returns
// ErrNotComplete if the resource isn't finished yet.
func (h *Handle) Export(originURL, target string) error {
	path, complete, err := h.mgr.LocalPathFor(originURL)
	if err != nil {
		return err
	}
	if !complete {
		return ErrNotComplete
	}
	return copyFile(path, target)
}

// Move renames the completed file for originURL to target. Returns
// ErrNotComplete if the resource isn't finished yet.
func (h *Handle) Move(originURL, target string) error {
	path, complete, err := h.mgr.LocalPathFor(originURL)
	if err != nil {
		return err
	}
	if !complete {
		return ErrNotComplete
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Rename(path, target)
}

// ExportAutoName copies the completed file for originURL into dir using
// its suggested name, returning the final path.
func (h *Handle) ExportAutoName(originURL, dir string) (string, error) {
	path, complete, err := h.mgr.LocalPathFor(originURL)
	if err != nil {
		return "", err
	}
	if !complete {
		return "", ErrNotComplete
	}
	target := filepath.Join(dir, h.suggestedNameFor(originURL, path))
	if err := copyFile(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// MoveAutoName renames the completed file for originURL into dir using
// its suggested name, returning the final path.
func (h *Handle) MoveAutoName(originURL, dir string) (string, error) {
	path, complete, err := h.mgr.LocalPathFor(originURL)
	if err != nil {
		return "", err
	}
	if !complete {
		return "", ErrNotComplete
	}
	target := filepath.Join(dir, h.suggestedNameFor(originURL, path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// suggestedNameFor derives the spec.md §3 suggested_name for originURL.
// While the resource is still tracked (including the window between a
// live request finishing the last byte and the completer noticing and
// promoting it) its learned FileName/MimeType are used via
// resourceid.SuggestedName; once promoted and untracked, nothing but the
// already-assigned on-disk name survives, so that basename is kept.
func (h *Handle) suggestedNameFor(originURL, path string) string {
	if res, ok := h.lookupByURL(originURL); ok {
		return resourceid.SuggestedName(res.ID(), res.FileName(), res.OriginURL(), res.MimeType())
	}
	return filepath.Base(path)
}

// SetTarget sets an explicit promotion destination for originURL.
func (h *Handle) SetTarget(originURL, path string) error {
	return h.mgr.SetTargetByURL(originURL, path)
}

// SetTargetByID sets an explicit promotion destination by resource id.
func (h *Handle) SetTargetByID(id, path string) error {
	return h.mgr.SetTargetByID(id, path)
}

// Dispose cancels every resource's background work, forces a final save
// of each, and stops the server. The Handle must not be used afterward.
func (h *Handle) Dispose() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	for _, info := range h.mgr.ListAll() {
		res, ok := h.lookupByID(info.ID)
		if !ok {
			continue
		}
		res.Stop()
		res.SaveNow()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := h.srv.Shutdown(ctx)
	if global == h {
		global = nil
	}
	return err
}

func (h *Handle) lookupByURL(originURL string) (*resource.Resource, bool) {
	for _, info := range h.mgr.ListAll() {
		if info.OriginURL == originURL {
			res, ok := h.lookupByID(info.ID)
			return res, ok
		}
	}
	return nil, false
}

func (h *Handle) lookupByID(id string) (*resource.Resource, bool) {
	return h.mgr.Lookup(id)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
