package manager

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/metastore"
	"github.com/haldorio/rangeproxy/rangeset"
	"github.com/haldorio/rangeproxy/resource"
)

// LoadStorageDir performs spec.md §4.E's startup validation: enumerate
// every "<id>.video" in the storage directory; one with a companion
// "<id>.meta" is resumed, one without is treated as already complete
// and promoted.
func (m *Manager) LoadStorageDir() error {
	entries, err := os.ReadDir(m.storageDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".video") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".video")

		if _, err := os.Stat(m.metaPath(id)); err == nil {
			if err := m.resumeResource(id); err != nil {
				m.logger.Error("failed to resume resource on startup", zap.String("resource_id", id), zap.Error(err))
			}
			continue
		}

		if err := m.promoteCompleteOrphan(id); err != nil {
			m.logger.Error("failed to promote orphaned complete file on startup", zap.String("resource_id", id), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) resumeResource(id string) error {
	attrs, set, err := metastore.Load(m.metaPath(id))
	if err != nil {
		// MetaCorrupt per spec.md §7: log rather than crash. A corrupt
		// meta yields no origin URL, so the check below skips the resume;
		// the data file stays in place, and the next Acquire of its URL
		// re-creates the resource with an empty cached_set.
		m.logger.Warn("meta file corrupt, discarding its cached_set", zap.String("resource_id", id), zap.Error(err))
		info, statErr := os.Stat(m.dataPath(id))
		if statErr != nil {
			return statErr
		}
		attrs.ID = id
		attrs.TotalSize = info.Size()
		set = rangeset.New(attrs.TotalSize)
	}

	if attrs.OriginURL == "" {
		m.logger.Warn("meta file has no origin url, skipping resume", zap.String("resource_id", id))
		return nil
	}

	f, err := os.OpenFile(m.dataPath(id), os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	source, err := m.newSource(attrs.OriginURL)
	if err != nil {
		f.Close()
		return err
	}

	res := resource.New(id, attrs.OriginURL, set, f, m.metaPath(id), source, resource.Options{
		Logger:      m.logger,
		ProgressHub: m.progressHub,
	})
	if attrs.FileName != "" {
		res.SetFileName(attrs.FileName)
	}
	if attrs.MimeType != "" {
		res.SetMimeType(attrs.MimeType)
	}
	if attrs.TargetPath != "" {
		res.SetTargetPath(attrs.TargetPath)
	}

	m.mu.Lock()
	m.resources[id] = res
	m.mu.Unlock()
	return nil
}

// promoteCompleteOrphan handles a "<id>.video" with no "<id>.meta":
// spec.md §4.B treats this as already complete. It is promoted directly
// without ever becoming a tracked Resource.
func (m *Manager) promoteCompleteOrphan(id string) error {
	target := filepath.Join(m.collectionsDir, id+defaultExtension)
	if _, err := os.Stat(target); err == nil {
		m.logger.Info("promotion target already exists, leaving orphan in place", zap.String("resource_id", id))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Rename(m.dataPath(id), target)
}
