package rangeset

import "testing"

func TestNewPicksRepresentation(t *testing.T) {
	if k := New(1024).Kind(); k != KindList {
		t.Fatalf("small file: got %s, want list", k)
	}
	if k := New(bitmapThreshold + 1).Kind(); k != KindBitmap {
		t.Fatalf("large file: got %s, want bitmap", k)
	}
}

func runSetTests(t *testing.T, newSet func(total int64) Set) {
	t.Run("insert then contains", func(t *testing.T) {
		s := newSet(1024)
		s.Insert(10, 20)
		if !s.Contains(10, 20) {
			t.Fatal("expected contains(10,20)")
		}
		if s.Contains(0, 9) {
			t.Fatal("unexpected contains(0,9)")
		}
	})

	t.Run("insert is idempotent", func(t *testing.T) {
		s := newSet(1024)
		s.Insert(10, 20)
		s.Insert(10, 20)
		if !s.Contains(10, 20) {
			t.Fatal("expected contains after repeated insert")
		}
	})

	t.Run("subrange contains holds", func(t *testing.T) {
		s := newSet(1024)
		s.Insert(0, 1023)
		if !s.Contains(500, 600) {
			t.Fatal("expected subrange of full insert to be contained")
		}
	})

	t.Run("progress and complete", func(t *testing.T) {
		s := newSet(1024)
		if s.Progress() != 0 {
			t.Fatalf("expected 0 progress, got %f", s.Progress())
		}
		s.Insert(0, 1023)
		if s.Progress() != 100 {
			t.Fatalf("expected 100 progress, got %f", s.Progress())
		}
		if !s.IsComplete() {
			t.Fatal("expected complete")
		}
	})

	t.Run("gaps partition the file", func(t *testing.T) {
		s := newSet(1000)
		s.Insert(100, 199)
		s.Insert(500, 599)

		gaps := s.AllGaps()
		var covered int64
		for _, g := range gaps {
			covered += g.Len()
		}
		var present int64
		if !s.IsComplete() {
			present = 200
		}
		if covered+present != 1000 {
			t.Fatalf("gaps+present = %d, want 1000 (gaps=%v)", covered+present, gaps)
		}
	})

	t.Run("next gap after pos", func(t *testing.T) {
		s := newSet(1000)
		s.Insert(0, 99)
		g, ok := s.NextGap(50)
		if !ok {
			t.Fatal("expected a gap")
		}
		if g.Start != 100 {
			t.Fatalf("expected gap starting at 100, got %d", g.Start)
		}
	})

	t.Run("next gap none when complete", func(t *testing.T) {
		s := newSet(100)
		s.Insert(0, 99)
		if _, ok := s.NextGap(0); ok {
			t.Fatal("expected no gap")
		}
	})
}

func TestIntervalSet(t *testing.T) {
	runSetTests(t, func(total int64) Set { return newIntervalSet(total) })
}

func TestBlockBitmap(t *testing.T) {
	runSetTests(t, func(total int64) Set { return newBlockBitmap(total) })
}

func TestIntervalSetCoalesceAcrossTailThreshold(t *testing.T) {
	s := newIntervalSet(10000)
	for i := int64(0); i < coalesceThreshold+5; i++ {
		s.Insert(i*2, i*2)
	}
	// every even byte in [0, 2*(n-1)] inserted as single-byte intervals;
	// after coalescing none of them touch (gap of 1 byte between them)
	ivs := s.Intervals()
	if len(ivs) != int(coalesceThreshold+5) {
		t.Fatalf("expected %d disjoint intervals, got %d", coalesceThreshold+5, len(ivs))
	}
}

func TestIntervalSetMergesAdjacent(t *testing.T) {
	s := newIntervalSet(100)
	s.Insert(0, 9)
	s.Insert(10, 19)
	ivs := s.Intervals()
	if len(ivs) != 1 || ivs[0].Start != 0 || ivs[0].End != 19 {
		t.Fatalf("expected merged [0,19], got %v", ivs)
	}
}

func TestBlockBitmapPartialLastBlock(t *testing.T) {
	total := int64(BlockSize + 100) // last block only has 100 bytes
	s := newBlockBitmap(total)
	s.Insert(0, total-1)
	if !s.IsComplete() {
		t.Fatal("expected complete with partial final block")
	}
	if p := s.Progress(); p != 100 {
		t.Fatalf("expected 100%% progress, got %f", p)
	}
}

func TestBlockBitmapBoundarySizes(t *testing.T) {
	for _, total := range []int64{1, BlockSize - 1, BlockSize, BlockSize + 1, 100*1024*1024 + 1} {
		s := newBlockBitmap(total)
		s.Insert(0, total-1)
		if !s.Contains(0, total-1) {
			t.Fatalf("total=%d: expected full range contained", total)
		}
		if !s.IsComplete() {
			t.Fatalf("total=%d: expected complete", total)
		}
	}
}
