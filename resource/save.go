package resource

import (
	"time"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/metastore"
)

// scheduleSave (re)arms the debounce timer so a save fires saveDebounce
// after the last mutation, per spec.md §4.B's save policy. Matches the
// teacher's pattern of calling savePart() after every state-changing op
// (idle.go's ingestData), generalized into a timer instead of an
// unconditional synchronous save so bursts of small chunks coalesce into
// one disk write.
func (r *Resource) scheduleSave() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.saveTimer = time.AfterFunc(r.saveDebounce, r.fireScheduledSave)
}

func (r *Resource) fireScheduledSave() {
	if err := r.SaveNow(); err != nil {
		r.logger.Error("debounced meta save failed", zap.Error(err))
	}
}

// SaveNow performs an immediate, synchronous MetaStore save, bypassing
// the debounce timer. Called on completion, pause, and shutdown per
// spec.md §4.B.
func (r *Resource) SaveNow() error {
	r.mu.Lock()
	if !r.saveDirty {
		r.mu.Unlock()
		return nil
	}
	attrs := metastore.Attrs{
		ID:         r.id,
		OriginURL:  r.originURL,
		TotalSize:  r.set.TotalSize(),
		MimeType:   r.mimeType,
		FileName:   r.fileName,
		TargetPath: r.targetPath,
	}
	set := r.set
	metaPath := r.metaPath
	r.saveDirty = false
	r.mu.Unlock()

	return metastore.Save(metaPath, attrs, set)
}

// Close stops the debounce timer, performs a final save if dirty, and
// closes the data file handle. Mirrors the teacher's File.Close
// (close.go): flush state to disk before releasing the descriptor.
func (r *Resource) Close() error {
	r.mu.Lock()
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.mu.Unlock()

	if err := r.SaveNow(); err != nil {
		r.logger.Error("final meta save on close failed", zap.Error(err))
	}

	r.source.Dispose()
	return r.dataFile.Close()
}
