package manager

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/resource"
	"github.com/haldorio/rangeproxy/resourceid"
)

// promote implements spec.md §4.E's promotion step: delete the meta
// file, rename the data file to its promotion_target (or the default
// <collections>/<id>.<ext>), and drop the Resource from the active map.
// An existing file at the destination is preserved and promotion is
// silently skipped, per spec.md §9's resolved ambiguity — the bool
// return lets callers and tests distinguish "promoted" from "skipped".
func (m *Manager) promote(res *resource.Resource) (bool, error) {
	id := res.ID()

	if err := res.Close(); err != nil {
		m.logger.Error("error closing resource before promotion", zap.String("resource_id", id), zap.Error(err))
	}
	os.Remove(m.metaPath(id))

	target := res.TargetPath()
	if target == "" {
		ext := resourceid.Extension(res.FileName(), res.OriginURL(), res.MimeType())
		if ext == "" {
			ext = defaultExtension
		}
		target = filepath.Join(m.collectionsDir, id+ext)
	}

	m.forget(id)

	if _, err := os.Stat(target); err == nil {
		m.logger.Info("promotion target already exists, skipping", zap.String("resource_id", id), zap.String("target", target))
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("manager: create promotion target dir: %w", err)
	}
	if err := os.Rename(m.dataPath(id), target); err != nil {
		return false, fmt.Errorf("manager: promote %s: %w", id, err)
	}
	return true, nil
}
