package rangeset

import (
	"io"

	"github.com/RoaringBitmap/roaring"
)

// BlockBitmap is the large-file representation: one bit per BlockSize
// bytes, backed by a roaring.Bitmap exactly as in the teacher's File
// type (f.status). Partial-block insertions round outward for marking
// (the whole touched block is marked present) and inward for querying
// (every block a range overlaps must be marked present) — sound because
// writes always land whole upstream chunks at their exact requested
// start offset, so an insertion only ever covers partial blocks at the
// very end of the file.
type BlockBitmap struct {
	total  int64
	bitmap *roaring.Bitmap
}

func newBlockBitmap(total int64) *BlockBitmap {
	return &BlockBitmap{total: total, bitmap: roaring.New()}
}

// NewBlockBitmapFromReader rebuilds a BlockBitmap from a previously
// persisted roaring bitmap payload (MetaStore's load path).
func NewBlockBitmapFromReader(total int64, r io.Reader) (*BlockBitmap, error) {
	bm := roaring.New()
	if _, err := bm.ReadFrom(r); err != nil {
		return nil, err
	}
	return &BlockBitmap{total: total, bitmap: bm}, nil
}

func (b *BlockBitmap) Kind() Kind       { return KindBitmap }
func (b *BlockBitmap) TotalSize() int64 { return b.total }

// Bitmap returns the underlying roaring bitmap, for MetaStore to
// serialize via WriteTo.
func (b *BlockBitmap) Bitmap() *roaring.Bitmap { return b.bitmap }

func (b *BlockBitmap) blockCount() int64 {
	n := b.total / BlockSize
	if b.total%BlockSize != 0 {
		n++
	}
	return n
}

func (b *BlockBitmap) Insert(start, end int64) {
	if start < 0 {
		start = 0
	}
	if end >= b.total {
		end = b.total - 1
	}
	if start > end {
		return
	}

	first := uint32(start / BlockSize)
	last := uint32(end / BlockSize)
	for blk := first; blk <= last; blk++ {
		b.bitmap.Add(blk)
	}
}

func (b *BlockBitmap) Contains(start, end int64) bool {
	if start > end {
		return true
	}
	if start < 0 || end >= b.total {
		return false
	}

	first := uint32(start / BlockSize)
	last := uint32(end / BlockSize)
	for blk := first; blk <= last; blk++ {
		if !b.bitmap.Contains(blk) {
			return false
		}
	}
	return true
}

func (b *BlockBitmap) NextGap(pos int64) (Gap, bool) {
	if pos < 0 {
		pos = 0
	}
	if pos >= b.total {
		return Gap{}, false
	}

	blkCount := b.blockCount()
	startBlk := uint32(pos / BlockSize)

	var gapStartBlk = int64(-1)
	for blk := int64(startBlk); blk < blkCount; blk++ {
		present := b.bitmap.Contains(uint32(blk))
		if !present && gapStartBlk < 0 {
			gapStartBlk = blk
		}
		if present && gapStartBlk >= 0 {
			return b.blockRangeToGap(gapStartBlk, blk-1), true
		}
	}
	if gapStartBlk >= 0 {
		return b.blockRangeToGap(gapStartBlk, blkCount-1), true
	}
	return Gap{}, false
}

func (b *BlockBitmap) AllGaps() []Gap {
	var gaps []Gap
	blkCount := b.blockCount()

	gapStartBlk := int64(-1)
	for blk := int64(0); blk < blkCount; blk++ {
		present := b.bitmap.Contains(uint32(blk))
		if !present && gapStartBlk < 0 {
			gapStartBlk = blk
		}
		if present && gapStartBlk >= 0 {
			gaps = append(gaps, b.blockRangeToGap(gapStartBlk, blk-1))
			gapStartBlk = -1
		}
	}
	if gapStartBlk >= 0 {
		gaps = append(gaps, b.blockRangeToGap(gapStartBlk, blkCount-1))
	}
	return gaps
}

// blockRangeToGap converts an inclusive block-index range to a byte Gap,
// clamping the final block's end to the true file size.
func (b *BlockBitmap) blockRangeToGap(firstBlk, lastBlk int64) Gap {
	start := firstBlk * BlockSize
	end := (lastBlk+1)*BlockSize - 1
	if end >= b.total {
		end = b.total - 1
	}
	return Gap{start, end}
}

func (b *BlockBitmap) Progress() float64 {
	if b.total <= 0 {
		return 0
	}

	card := int64(b.bitmap.GetCardinality())
	present := card * BlockSize

	blkCount := b.blockCount()
	lastBlockSize := b.total % BlockSize
	if lastBlockSize != 0 && b.bitmap.Contains(uint32(blkCount-1)) {
		present -= BlockSize
		present += lastBlockSize
	}
	if present > b.total {
		present = b.total
	}
	return 100 * float64(present) / float64(b.total)
}

func (b *BlockBitmap) IsComplete() bool {
	if b.bitmap.IsEmpty() {
		return b.total == 0
	}
	return int64(b.bitmap.GetCardinality()) == b.blockCount()
}
