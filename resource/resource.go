// Package resource owns a single cached URL's in-memory and on-disk
// state: the sparse data file, its RangeSet, its OriginSource, and the
// per-resource mutex and debounced-save timer that guard them.
// Generalizes the teacher's File type (file.go) from a whole-file
// block-bitmap cache keyed by its own connection pool into a
// representation-agnostic byte-range cache fed by a pluggable
// origin.Source.
package resource

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/events"
	"github.com/haldorio/rangeproxy/metastore"
	"github.com/haldorio/rangeproxy/origin"
	"github.com/haldorio/rangeproxy/rangeset"
)

// saveDebounce is the delay after the last mutation before a save fires,
// within the 500-1000ms window.
const saveDebounce = 750 * time.Millisecond

// Progress is published on a resource's progress hub after any mutation
// that moves cached_set forward.
type Progress struct {
	OriginURL string
	Percent   float64
}

// Options configures a Resource at construction time.
type Options struct {
	Logger       *zap.Logger
	ProgressHub  *events.Hub[Progress]
	SaveDebounce time.Duration // zero uses the package default
}

// Resource is a single cached URL's complete state, per spec.md §3.
type Resource struct {
	id         string
	originURL  string
	mimeType   string
	fileName   string
	targetPath string

	mu       sync.Mutex
	set      rangeset.Set
	dataFile *os.File
	metaPath string
	source   origin.Source

	live bool // cooperative stop flag for the completer

	// wake lets a live request nudge this resource's Completer to skip
	// the remainder of its current scheduling tick, per spec.md §6's
	// idle-time opportunistic prefetch: buffered size-1, drop-if-full,
	// matching the teacher's dlClient.idleTaskRun -> idleTrigger send.
	wake chan struct{}

	saveTimer   *time.Timer
	saveDirty   bool
	saveDebounce time.Duration

	logger      *zap.Logger
	progressHub *events.Hub[Progress]
}

// New constructs a Resource around an already-open sparse data file and
// an already-sized RangeSet. Callers (the manager, on create or on
// startup load) are responsible for truncating dataFile to totalSize.
func New(id, originURL string, set rangeset.Set, dataFile *os.File, metaPath string, source origin.Source, opts Options) *Resource {
	debounce := opts.SaveDebounce
	if debounce <= 0 {
		debounce = saveDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resource{
		id:           id,
		originURL:    originURL,
		set:          set,
		dataFile:     dataFile,
		metaPath:     metaPath,
		source:       source,
		live:         true,
		wake:         make(chan struct{}, 1),
		saveDebounce: debounce,
		logger:       logger.With(zap.String("resource_id", id)),
		progressHub:  opts.ProgressHub,
	}
}

func (r *Resource) ID() string          { return r.id }
func (r *Resource) OriginURL() string   { return r.originURL }
func (r *Resource) TotalSize() int64    { return r.set.TotalSize() }
func (r *Resource) Source() origin.Source { return r.source }

func (r *Resource) MimeType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mimeType
}

func (r *Resource) SetMimeType(mt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mimeType == "" {
		r.mimeType = mt
	}
}

func (r *Resource) FileName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fileName
}

func (r *Resource) SetFileName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fileName == "" {
		r.fileName = name
	}
}

// TargetPath returns the promotion target, if one was set explicitly.
func (r *Resource) TargetPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetPath
}

// SetTargetPath sets an explicit promotion destination, overriding the
// <collections>/<id>.<ext> default.
func (r *Resource) SetTargetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targetPath = path
}

// IsLive reports whether the completer should keep running for this
// resource.
func (r *Resource) IsLive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Wake posts a non-blocking hint to this resource's Completer, nudging
// it to skip the remainder of its current scheduling tick. A pending,
// not-yet-consumed hint is left alone rather than blocking.
func (r *Resource) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// WakeChan returns the channel the Completer selects on to receive wake
// hints.
func (r *Resource) WakeChan() <-chan struct{} {
	return r.wake
}

// Stop clears the liveness flag, cooperatively stopping the completer,
// and calls the source's Cancel (for origin.HTTPSource that aborts only
// the most recently started fetch).
func (r *Resource) Stop() {
	r.mu.Lock()
	r.live = false
	r.mu.Unlock()
	r.source.Cancel()
}

// Resume sets the liveness flag back on, allowing the completer to run
// again.
func (r *Resource) Resume() {
	r.mu.Lock()
	r.live = true
	r.mu.Unlock()
}

func (r *Resource) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Progress()
}

func (r *Resource) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.IsComplete()
}

func (r *Resource) Contains(start, end int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Contains(start, end)
}

func (r *Resource) NextGap(pos int64) (rangeset.Gap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.NextGap(pos)
}

func (r *Resource) AllGaps() []rangeset.Gap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.AllGaps()
}

func (r *Resource) Kind() rangeset.Kind {
	return r.set.Kind()
}

// Attrs returns the durable attributes MetaStore persists.
func (r *Resource) Attrs() metastore.Attrs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return metastore.Attrs{
		ID:         r.id,
		OriginURL:  r.originURL,
		TotalSize:  r.set.TotalSize(),
		MimeType:   r.mimeType,
		FileName:   r.fileName,
		TargetPath: r.targetPath,
	}
}

// ReadAt reads len(p) bytes at off from the data file. The caller must
// already know [off, off+len(p)-1] is cached (via Contains); ReadAt does
// not consult the RangeSet itself, matching the teacher's readAt which
// leaves the "is it downloaded" check to its own caller chain.
func (r *Resource) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataFile.ReadAt(p, off)
}

// IngestChunk writes data at its absolute offset and marks it present,
// holding the per-resource mutex across exactly that one syscall pair
// plus the RangeSet update, then schedules a debounced save. Matches the
// teacher's ingestData (idle.go) writing to disk before marking the
// bitmap, and SavePart being triggered right after.
func (r *Resource) IngestChunk(offset int64, data []byte) error {
	r.mu.Lock()
	_, err := r.dataFile.WriteAt(data, offset)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("resource %s: write at %d: %w", r.id, offset, err)
	}
	r.set.Insert(offset, offset+int64(len(data))-1)
	r.saveDirty = true
	r.mu.Unlock()

	r.scheduleSave()
	r.publishProgress()
	return nil
}

func (r *Resource) publishProgress() {
	if r.progressHub == nil {
		return
	}
	r.progressHub.Publish(Progress{OriginURL: r.originURL, Percent: r.Progress()})
}
