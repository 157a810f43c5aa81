package manager

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/resourceid"
)

// RemoveByID implements spec.md §4.E's removal: stop the completer,
// cancel the OriginSource, remove the Resource from the active map,
// and delete its data file, meta file, and any promoted collection
// file whose stem is the id.
func (m *Manager) RemoveByID(id string) error {
	res, ok := m.get(id)
	if ok {
		res.Stop()
		if err := res.Close(); err != nil {
			m.logger.Warn("error closing resource during removal", zap.String("resource_id", id), zap.Error(err))
		}
		m.forget(id)
	}

	os.Remove(m.dataPath(id))
	os.Remove(m.metaPath(id))

	matches, _ := filepath.Glob(filepath.Join(m.collectionsDir, id+".*"))
	for _, match := range matches {
		os.Remove(match)
	}
	return nil
}

// RemoveByURL resolves originURL to its id and removes it.
func (m *Manager) RemoveByURL(originURL string) error {
	return m.RemoveByID(resourceid.For(originURL))
}

// ClearAll removes every tracked resource, then deletes anything left
// over in the storage directory, per spec.md §4.E.
func (m *Manager) ClearAll() error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.resources))
	for id := range m.resources {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.RemoveByID(id); err != nil {
			m.logger.Error("error removing resource during clear_all", zap.String("resource_id", id), zap.Error(err))
		}
	}

	entries, err := os.ReadDir(m.storageDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		os.RemoveAll(filepath.Join(m.storageDir, entry.Name()))
	}
	return nil
}
