// Package rangeset tracks which byte intervals of a file of known total
// size are present on disk. It provides two representations of the same
// abstract set — an interval list and a block bitmap — selected once at
// construction time based on the file's total size.
package rangeset

// Kind identifies which concrete representation backs a Set.
type Kind int

const (
	// KindList backs small files with a sorted, coalesced interval list.
	KindList Kind = iota
	// KindBitmap backs large files with a fixed-block-size bitmap.
	KindBitmap
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindBitmap:
		return "bitmap"
	default:
		return "unknown"
	}
}

// bitmapThreshold is the total-size cutoff above which Set switches from
// the interval-list representation to the block-bitmap one.
const bitmapThreshold = 100 * 1024 * 1024 // 100 MiB

// BlockSize is the fixed block granularity used by the bitmap
// representation. Changing it is safe; the soundness of the bitmap
// representation does not depend on its value, only on writes always
// landing at the offset they were requested at (see BlockBitmap).
const BlockSize = 64 * 1024 // 64 KiB

// Gap is a maximal contiguous interval of missing bytes, inclusive on
// both ends.
type Gap struct {
	Start, End int64
}

// Len returns the number of bytes in the gap.
func (g Gap) Len() int64 {
	return g.End - g.Start + 1
}

// Set is the cached-byte-set of a single resource. Implementations must
// be safe only under external synchronization — callers serialize access
// (see resource.Resource's per-resource mutex).
type Set interface {
	// Insert marks [start,end] (inclusive) as present. Idempotent.
	Insert(start, end int64)

	// Contains reports whether every byte of [start,end] is present.
	Contains(start, end int64) bool

	// NextGap returns the nearest missing interval that contains or
	// follows pos, or ok=false if no bytes are missing in [pos, total).
	NextGap(pos int64) (gap Gap, ok bool)

	// AllGaps returns every missing interval in [0, total-1], in order.
	AllGaps() []Gap

	// Progress returns the percentage of bytes present, in [0, 100].
	Progress() float64

	// IsComplete reports whether every byte in [0, total-1] is present.
	IsComplete() bool

	// TotalSize returns the size the set was constructed with.
	TotalSize() int64

	// Kind identifies the backing representation.
	Kind() Kind
}

// New builds the representation appropriate for totalSize: a block
// bitmap above the 100 MiB threshold, an interval list otherwise. The
// representation never changes after construction.
func New(totalSize int64) Set {
	if totalSize > bitmapThreshold {
		return newBlockBitmap(totalSize)
	}
	return newIntervalSet(totalSize)
}
