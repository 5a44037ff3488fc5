// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"math"
)

// Elapsed returns the number of ticks between two
// timestamps. If end is less than start, the counter is
// assumed to have wrapped around once.
func Elapsed(start, end uint64) uint64 {
	if end >= start {
		return end - start
	}
	return math.MaxUint64 - start + end + 1
}

// TicksToMs converts ticks to milliseconds given the
// timestamp period in nanoseconds per tick.
func TicksToMs(ticks uint64, period float32) float64 {
	return float64(ticks) * float64(period) / 1e6
}

// ReadTimestamps reads back the timestamps written by the
// last Run of f and stores GPU times in f.Stats.
// It does not wait. If the results are not available, or
// nothing was written, f.Stats is left as is.
func (g *Graph) ReadTimestamps(f *Frame) {
	tm := &f.Timing
	if tm.Count == 0 || f.Queries == nil || g.gpu == nil {
		return
	}
	if cap(g.ts) < tm.Count {
		g.ts = make([]uint64, tm.Count)
	}
	ts := g.ts[:tm.Count]
	if err := f.Queries.Results(0, ts); err != nil {
		Logger().Debug("rgraph: timestamps unavailable", "err", err)
		return
	}
	period := g.gpu.Limits().TimestampPeriod
	f.Stats.GPU = TicksToMs(Elapsed(ts[tm.Total[0]], ts[tm.Total[1]]), period)
	for i, p := range tm.Passes {
		gpu := TicksToMs(Elapsed(ts[p.Start], ts[p.Start+1]), period)
		if i < len(f.Stats.Passes) && f.Stats.Passes[i].Name == p.Name {
			f.Stats.Passes[i].GPU = gpu
		}
	}
	f.Stats.Resolved = true
}
