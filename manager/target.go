package manager

import (
	"fmt"
	"path/filepath"

	"github.com/haldorio/rangeproxy/resourceid"
)

// SetTargetByID sets an explicit promotion destination for a still-
// tracked resource, per spec.md §6's set_target_by_id.
func (m *Manager) SetTargetByID(id, path string) error {
	res, ok := m.get(id)
	if !ok {
		return fmt.Errorf("manager: no active resource with id %q", id)
	}
	res.SetTargetPath(path)
	return nil
}

// SetTargetByURL resolves originURL to its id and sets its target.
func (m *Manager) SetTargetByURL(originURL, path string) error {
	return m.SetTargetByID(resourceid.For(originURL), path)
}

// LocalPathFor resolves originURL to wherever its bytes currently live:
// the in-progress sparse file in storage if still tracked, or the
// promoted file under collections if it has already been moved out.
// complete is true only when the full resource is available at path.
func (m *Manager) LocalPathFor(originURL string) (path string, complete bool, err error) {
	id := resourceid.For(originURL)

	if res, ok := m.get(id); ok {
		return m.dataPath(id), res.IsComplete(), nil
	}

	matches, _ := filepath.Glob(filepath.Join(m.collectionsDir, id+".*"))
	if len(matches) > 0 {
		return matches[0], true, nil
	}

	return "", false, fmt.Errorf("manager: unknown resource for url %q", originURL)
}
