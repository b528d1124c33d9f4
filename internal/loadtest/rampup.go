package loadtest

import (
	"math"
	"sort"
	"time"
)

// DefaultBatchInterval is the spacing between ramp-up batches.
const DefaultBatchInterval = 5 * time.Second

// RampBatch is one group of actors started together.
type RampBatch struct {
	Index  int           `json:"index"`
	Offset time.Duration `json:"offset"`
	Size   int           `json:"size"`
}

// PlanRampUp splits userCount into equal batches, one per interval slot of
// the ramp-up window. The batch size is ceil(userCount / (rampUp/interval));
// the last batch takes the remainder. A window shorter than one interval
// starts everyone in a single batch.
func PlanRampUp(userCount int, rampUp, interval time.Duration) []RampBatch {
	if userCount <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultBatchInterval
	}

	slots := float64(rampUp) / float64(interval)
	if slots <= 1 {
		return []RampBatch{{Index: 0, Offset: 0, Size: userCount}}
	}

	size := int(math.Ceil(float64(userCount) / slots))
	if size < 1 {
		size = 1
	}

	var batches []RampBatch
	for remaining, i := userCount, 0; remaining > 0; i++ {
		n := size
		if n > remaining {
			n = remaining
		}
		batches = append(batches, RampBatch{
			Index:  i,
			Offset: time.Duration(i) * interval,
			Size:   n,
		})
		remaining -= n
	}
	return batches
}

// assignActorTypes returns one actor type per user slot. Counts follow mix by
// largest remainder; the types are interleaved so that every ramp-up batch
// carries roughly the same mix.
func assignActorTypes(userCount int, mix map[string]float64) []string {
	if userCount <= 0 || len(mix) == 0 {
		return nil
	}

	names := make([]string, 0, len(mix))
	var total float64
	for name, w := range mix {
		if w > 0 {
			names = append(names, name)
			total += w
		}
	}
	if total == 0 {
		return nil
	}
	sort.Strings(names)

	counts := make(map[string]int, len(names))
	type rem struct {
		name string
		frac float64
	}
	rems := make([]rem, 0, len(names))
	assigned := 0
	for _, name := range names {
		exact := mix[name] / total * float64(userCount)
		counts[name] = int(math.Floor(exact))
		assigned += counts[name]
		rems = append(rems, rem{name: name, frac: exact - math.Floor(exact)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < userCount; i++ {
		counts[rems[i%len(rems)].name]++
		assigned++
	}

	out := make([]string, 0, userCount)
	used := make(map[string]int, len(names))
	for i := 0; i < userCount; i++ {
		best := ""
		bestDeficit := math.Inf(-1)
		for _, name := range names {
			if used[name] >= counts[name] {
				continue
			}
			deficit := float64(counts[name])*float64(i+1)/float64(userCount) - float64(used[name])
			if deficit > bestDeficit {
				best, bestDeficit = name, deficit
			}
		}
		used[best]++
		out = append(out, best)
	}
	return out
}
