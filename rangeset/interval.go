package rangeset

import "sort"

// coalesceThreshold is the number of scratch-tail entries that forces an
// eager coalesce even without an intervening query.
const coalesceThreshold = 100

// Interval is an inclusive, disjoint byte range used by the list
// representation's on-disk and in-memory form.
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// IntervalSet is the small-file representation: a sorted, coalesced list
// of disjoint, non-adjacent intervals. Insertions are appended to a
// scratch tail and merged lazily — on the next query, or once the tail
// grows past coalesceThreshold — rather than on every call.
type IntervalSet struct {
	total     int64
	intervals []Interval // committed, sorted, coalesced
	tail      []Interval // scratch, unmerged
	dirty     bool
}

// newIntervalSet constructs an empty IntervalSet for a file of the given
// total size.
func newIntervalSet(total int64) *IntervalSet {
	return &IntervalSet{total: total}
}

// NewIntervalSetFromIntervals rebuilds an IntervalSet from a previously
// persisted, already-disjoint interval list (MetaStore's load path).
func NewIntervalSetFromIntervals(total int64, intervals []Interval) *IntervalSet {
	s := &IntervalSet{total: total, intervals: append([]Interval(nil), intervals...)}
	sort.Slice(s.intervals, func(i, j int) bool { return s.intervals[i].Start < s.intervals[j].Start })
	return s
}

func (s *IntervalSet) Kind() Kind      { return KindList }
func (s *IntervalSet) TotalSize() int64 { return s.total }

func (s *IntervalSet) Insert(start, end int64) {
	if start < 0 {
		start = 0
	}
	if end >= s.total {
		end = s.total - 1
	}
	if start > end {
		return
	}
	s.tail = append(s.tail, Interval{start, end})
	s.dirty = true
	if len(s.tail) > coalesceThreshold {
		s.coalesce()
	}
}

// coalesce merges the scratch tail into the committed interval list,
// sorting by start and merging any two intervals with next.Start <=
// cur.End+1.
func (s *IntervalSet) coalesce() {
	if !s.dirty {
		return
	}

	all := make([]Interval, 0, len(s.intervals)+len(s.tail))
	all = append(all, s.intervals...)
	all = append(all, s.tail...)
	s.tail = s.tail[:0]
	s.dirty = false

	if len(all) == 0 {
		s.intervals = all
		return
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Start < all[j].Start })

	merged := make([]Interval, 0, len(all))
	cur := all[0]
	for _, iv := range all[1:] {
		if iv.Start <= cur.End+1 {
			if iv.End > cur.End {
				cur.End = iv.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = iv
	}
	merged = append(merged, cur)

	s.intervals = merged
}

func (s *IntervalSet) Contains(start, end int64) bool {
	s.coalesce()

	// binary search for the first interval that could cover start
	i := sort.Search(len(s.intervals), func(i int) bool { return s.intervals[i].End >= start })
	if i >= len(s.intervals) {
		return false
	}
	return s.intervals[i].Start <= start && s.intervals[i].End >= end
}

func (s *IntervalSet) Intervals() []Interval {
	s.coalesce()
	return append([]Interval(nil), s.intervals...)
}

func (s *IntervalSet) NextGap(pos int64) (Gap, bool) {
	s.coalesce()

	if pos < 0 {
		pos = 0
	}
	if pos >= s.total {
		return Gap{}, false
	}

	cursor := pos
	for _, iv := range s.intervals {
		if iv.End < cursor {
			continue
		}
		if iv.Start > cursor {
			// gap is [cursor, iv.Start-1]
			end := iv.Start - 1
			return Gap{cursor, end}, true
		}
		// cursor sits inside this interval; skip past it
		cursor = iv.End + 1
		if cursor >= s.total {
			return Gap{}, false
		}
	}
	return Gap{cursor, s.total - 1}, true
}

func (s *IntervalSet) AllGaps() []Gap {
	s.coalesce()

	var gaps []Gap
	cursor := int64(0)
	for _, iv := range s.intervals {
		if iv.Start > cursor {
			gaps = append(gaps, Gap{cursor, iv.Start - 1})
		}
		if iv.End+1 > cursor {
			cursor = iv.End + 1
		}
	}
	if cursor < s.total {
		gaps = append(gaps, Gap{cursor, s.total - 1})
	}
	return gaps
}

func (s *IntervalSet) Progress() float64 {
	s.coalesce()

	if s.total <= 0 {
		return 0
	}
	var present int64
	for _, iv := range s.intervals {
		present += iv.End - iv.Start + 1
	}
	return 100 * float64(present) / float64(s.total)
}

func (s *IntervalSet) IsComplete() bool {
	s.coalesce()

	return len(s.intervals) == 1 && s.intervals[0].Start == 0 && s.intervals[0].End == s.total-1
}
