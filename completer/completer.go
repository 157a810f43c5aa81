// Package completer runs the per-resource background gap-filling task
// of spec.md §4.E: it walks the resource's missing byte ranges in fixed
// chunks, feeding them through the same origin.Source/Resource path a
// live request uses, until the resource is complete or it is told to
// stop. Grounded on the teacher's File.Complete (read.go), generalized
// from "download every missing block synchronously under the file
// lock" into a loop that releases the per-resource mutex between
// chunks so live requests are never starved.
package completer

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/haldorio/rangeproxy/resource"
)

// ChunkSize is the fetch granularity for background completion, per
// spec.md §4.E.
const ChunkSize = 1024 * 1024

// fetchReadSize bounds how much of one origin byte-chunk is read into
// memory at a time.
const fetchReadSize = 64 * 1024

// schedulingTick paces the gap-to-gap cadence of background filling so
// it doesn't compete flat-out with live requests for bandwidth. A live
// request finishing calls Resource.Wake to cut this short, per spec.md
// §6's idle-time opportunistic prefetch.
const schedulingTick = 200 * time.Millisecond

// Run fills every gap in res until it is complete or res.IsLive()
// clears. onComplete is invoked exactly once, after the resource is
// observed complete (promotion is the caller's responsibility — the
// completer only detects completion). Run does not retry on error: it
// logs and returns, matching spec.md §4.E's "does not auto-retry"
// disposition.
func Run(ctx context.Context, res *resource.Resource, logger *zap.Logger, onComplete func(*resource.Resource)) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("resource_id", res.ID()))

	first := true
	for {
		if !res.IsLive() {
			logger.Debug("completer stopping: resource no longer live")
			return
		}

		if !first {
			select {
			case <-res.WakeChan():
			case <-time.After(schedulingTick):
			case <-ctx.Done():
				logger.Debug("completer stopping: context done")
				return
			}
		}
		first = false

		gaps := res.AllGaps()
		if len(gaps) == 0 {
			if res.IsComplete() {
				if err := res.SaveNow(); err != nil {
					logger.Error("final save before promotion failed", zap.Error(err))
				}
				onComplete(res)
			}
			return
		}

		gap := gaps[0]
		if err := fillGap(ctx, res, gap.Start, gap.End, logger); err != nil {
			logger.Error("completer gap fill failed", zap.Error(err))
			return
		}

		if !res.IsLive() {
			logger.Debug("completer stopping after gap fill: resource no longer live")
			return
		}
	}
}

// fillGap fetches [start,end] from the origin in ChunkSize windows,
// ingesting each one and checking liveness between windows so a
// cancellation takes effect quickly rather than after the whole gap.
func fillGap(ctx context.Context, res *resource.Resource, start, end int64, logger *zap.Logger) error {
	pos := start
	for pos <= end {
		if !res.IsLive() {
			return nil
		}

		winEnd := pos + ChunkSize - 1
		if winEnd > end {
			winEnd = end
		}

		if res.Contains(pos, winEnd) {
			// a live request already filled this window; move on.
			pos = winEnd + 1
			continue
		}

		if err := fetchWindow(ctx, res, pos, winEnd); err != nil {
			return err
		}
		pos = winEnd + 1
	}
	return nil
}

func fetchWindow(ctx context.Context, res *resource.Resource, start, end int64) error {
	body, err := res.Source().Fetch(ctx, start, end)
	if err != nil {
		return err
	}
	defer body.Close()

	buf := make([]byte, fetchReadSize)
	off := start
	for off <= end {
		want := int64(len(buf))
		if remain := end - off + 1; remain < want {
			want = remain
		}
		n, err := io.ReadFull(body, buf[:want])
		if n > 0 {
			if ierr := res.IngestChunk(off, buf[:n]); ierr != nil {
				return ierr
			}
			off += int64(n)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}
	}
	return nil
}
