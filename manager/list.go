package manager

import (
	"github.com/dustin/go-humanize"

	"github.com/haldorio/rangeproxy/rangeset"
	"github.com/haldorio/rangeproxy/resource"
)

// DownloadInfo is the list_all() row shape from spec.md §6, extended
// with the Representation/BlockSize supplemental feature from
// SPEC_FULL.md (the RangeSet's backing representation and, for the
// bitmap case, its block granularity — useful for operators/tests
// inspecting why a given resource chose one representation, mirroring
// the teacher's willingness to expose getBlockSize near-publicly) and a
// human-readable size for CLI/log consumers.
type DownloadInfo struct {
	ID             string
	LocalPath      string
	TotalSize      int64
	TotalSizeHuman string
	IsComplete     bool
	Progress       float64
	FileName       string
	OriginURL      string
	Representation string
	BlockSize      int64 // 0 for the list representation
}

// ListAll returns one DownloadInfo per currently tracked resource.
func (m *Manager) ListAll() []DownloadInfo {
	m.mu.RLock()
	snapshot := make(map[string]*resource.Resource, len(m.resources))
	for id, res := range m.resources {
		snapshot[id] = res
	}
	m.mu.RUnlock()

	out := make([]DownloadInfo, 0, len(snapshot))
	for id, res := range snapshot {
		var blockSize int64
		if res.Kind() == rangeset.KindBitmap {
			blockSize = rangeset.BlockSize
		}
		out = append(out, DownloadInfo{
			ID:             id,
			LocalPath:      m.dataPath(id),
			TotalSize:      res.TotalSize(),
			TotalSizeHuman: humanize.Bytes(uint64(res.TotalSize())),
			IsComplete:     res.IsComplete(),
			Progress:       res.Progress(),
			FileName:       res.FileName(),
			OriginURL:      res.OriginURL(),
			Representation: res.Kind().String(),
			BlockSize:      blockSize,
		})
	}
	return out
}
