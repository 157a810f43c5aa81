// Package manager is the lifecycle supervisor of spec.md §4.E: it owns
// resource identity, the active-resources registry, startup validation,
// and promotion of completed files. It implements server.Provider so
// the HybridServer can create-or-reuse a Resource per incoming request.
// Grounded on the teacher's factory.go (double-checked-locking map of
// url-hash to *File) and manager.go (a process-wide registry with a
// small lock protecting a one-task-per-key invariant), generalized from
// a single global map to a struct instance so multiple storage areas
// could coexist in one process.
package manager

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/completer"
	"github.com/haldorio/rangeproxy/events"
	"github.com/haldorio/rangeproxy/origin"
	"github.com/haldorio/rangeproxy/rangeset"
	"github.com/haldorio/rangeproxy/resource"
	"github.com/haldorio/rangeproxy/resourceid"
)

// defaultExtension is used when no file_name, origin_url tail, or
// mime_type yields a usable extension at promotion time. Includes the
// leading dot, matching resourceid.Extension's return convention.
const defaultExtension = ".mp4"

// Options configures a Manager.
type Options struct {
	StorageDir      string
	CollectionsDir  string // defaults to filepath.Join(StorageDir, "..", "collections")
	UserAgent       string
	Proxy           origin.ProxyConfig
	RequestHeaders  map[string]string // non-empty activates origin.HeaderAugmentedSource
	HTTPClient      *http.Client
	Logger          *zap.Logger
	ProgressHub     *events.Hub[resource.Progress]
	FileStatHub     *events.Hub[origin.FileStat]
}

// Manager owns every active Resource and the background completers
// running against them.
type Manager struct {
	storageDir     string
	collectionsDir string
	opts           Options
	logger         *zap.Logger

	mu        sync.RWMutex
	resources map[string]*resource.Resource

	activeMu sync.Mutex
	active   map[string]bool

	progressHub *events.Hub[resource.Progress]
	fileStatHub *events.Hub[origin.FileStat]
}

// New creates a Manager rooted at opts.StorageDir, creating the storage
// and collections directories if needed. It does not run startup
// validation; call LoadStorageDir for that.
func New(opts Options) (*Manager, error) {
	if opts.StorageDir == "" {
		return nil, fmt.Errorf("manager: storage dir is required")
	}
	if opts.CollectionsDir == "" {
		opts.CollectionsDir = filepath.Join(opts.StorageDir, "..", "collections")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ProgressHub == nil {
		opts.ProgressHub = events.NewHub[resource.Progress]()
	}
	if opts.FileStatHub == nil {
		opts.FileStatHub = events.NewHub[origin.FileStat]()
	}

	if err := os.MkdirAll(opts.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("manager: create storage dir: %w", err)
	}
	if err := os.MkdirAll(opts.CollectionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("manager: create collections dir: %w", err)
	}

	return &Manager{
		storageDir:     opts.StorageDir,
		collectionsDir: opts.CollectionsDir,
		opts:           opts,
		logger:         logger,
		resources:      make(map[string]*resource.Resource),
		active:         make(map[string]bool),
		progressHub:    opts.ProgressHub,
		fileStatHub:    opts.FileStatHub,
	}, nil
}

func (m *Manager) ProgressHub() *events.Hub[resource.Progress] { return m.progressHub }
func (m *Manager) FileStatHub() *events.Hub[origin.FileStat]   { return m.fileStatHub }
func (m *Manager) StorageDir() string                          { return m.storageDir }
func (m *Manager) CollectionsDir() string                       { return m.collectionsDir }

func (m *Manager) dataPath(id string) string { return filepath.Join(m.storageDir, id+".video") }
func (m *Manager) metaPath(id string) string { return filepath.Join(m.storageDir, id+".meta") }

func (m *Manager) newSource(originURL string) (origin.Source, error) {
	opts := origin.Options{
		Client:    m.opts.HTTPClient,
		UserAgent: m.opts.UserAgent,
		Proxy:     m.opts.Proxy,
		FileStats: m.fileStatHub,
	}
	if len(m.opts.RequestHeaders) > 0 {
		return origin.NewHeaderAugmentedSource(originURL, m.opts.RequestHeaders, opts)
	}
	return origin.NewHTTPSource(originURL, opts), nil
}

// Acquire implements server.Provider: resolve originURL to a Resource,
// creating it (origin HEAD + sparse data file allocation) on first
// sight, per spec.md §4.D step 2.
func (m *Manager) Acquire(ctx context.Context, originURL string) (*resource.Resource, error) {
	id := resourceid.For(originURL)

	m.mu.RLock()
	if res, ok := m.resources[id]; ok {
		m.mu.RUnlock()
		return res, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.resources[id]; ok {
		return res, nil
	}

	source, err := m.newSource(originURL)
	if err != nil {
		return nil, fmt.Errorf("manager: build origin source: %w", err)
	}

	stat, err := source.Head(ctx)
	if err != nil {
		source.Dispose()
		return nil, fmt.Errorf("manager: origin head failed: %w", err)
	}
	if stat.TotalSize <= 0 {
		source.Dispose()
		return nil, fmt.Errorf("manager: origin reported non-positive size %d", stat.TotalSize)
	}

	f, err := os.OpenFile(m.dataPath(id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		source.Dispose()
		return nil, fmt.Errorf("manager: open data file: %w", err)
	}
	if err := f.Truncate(stat.TotalSize); err != nil {
		f.Close()
		source.Dispose()
		return nil, fmt.Errorf("manager: truncate data file: %w", err)
	}

	set := rangeset.New(stat.TotalSize)
	res := resource.New(id, originURL, set, f, m.metaPath(id), source, resource.Options{
		Logger:      m.logger,
		ProgressHub: m.progressHub,
	})
	if stat.FileName != "" {
		res.SetFileName(stat.FileName)
	}
	if stat.MimeType != "" {
		res.SetMimeType(stat.MimeType)
	}

	m.resources[id] = res
	return res, nil
}

// EnsureCompleter implements server.Provider: start a background
// completer for res unless one is already running. Safe to call on
// every request; the active map makes repeat calls a no-op, which is
// how spec.md §4.D's "subsequent requests do not re-enqueue" is
// satisfied without separate per-request bookkeeping.
func (m *Manager) EnsureCompleter(res *resource.Resource) {
	m.activeMu.Lock()
	if m.active[res.ID()] {
		m.activeMu.Unlock()
		return
	}
	m.active[res.ID()] = true
	m.activeMu.Unlock()

	go func() {
		completer.Run(context.Background(), res, m.logger, m.onResourceComplete)
		m.activeMu.Lock()
		delete(m.active, res.ID())
		m.activeMu.Unlock()
	}()
}

func (m *Manager) onResourceComplete(res *resource.Resource) {
	if _, err := m.promote(res); err != nil {
		m.logger.Error("promotion failed", zap.String("resource_id", res.ID()), zap.Error(err))
	}
}

// get returns the in-memory Resource for id, if any.
func (m *Manager) get(id string) (*resource.Resource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.resources[id]
	return res, ok
}

// Lookup is the exported form of get, for callers outside the package
// (the facade) that need the live Resource rather than its summary.
func (m *Manager) Lookup(id string) (*resource.Resource, bool) {
	return m.get(id)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.resources, id)
	m.mu.Unlock()
}
