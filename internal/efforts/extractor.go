// Package efforts extracts "best effort" fast-split records from a
// per-second cumulative distance trace.
package efforts

// Target distances in meters, in the order results are returned.
const (
	Target400m         = 400.0
	Target1K           = 1000.0
	TargetMile         = 1609.34
	Target5K           = 5000.0
	Target10K          = 10000.0
	TargetHalfMarathon = 21097.5
	TargetMarathon     = 42195.0
)

// Targets is the fixed ordered set of distances scanned for every trace.
var Targets = []float64{
	Target400m,
	Target1K,
	TargetMile,
	Target5K,
	Target10K,
	TargetHalfMarathon,
	TargetMarathon,
}

// Effort is the fastest contiguous window covering TargetMeters.
// Indexes are positions in the input trace; DurationSec = EndIndex - StartIndex.
type Effort struct {
	TargetMeters float64
	StartIndex   int
	EndIndex     int
	DurationSec  int
}

// Extract scans a monotonically non-decreasing per-second cumulative
// distance trace and returns at most one effort per target distance.
// Targets the trace never covers are omitted. Traces shorter than two
// samples produce no results.
func Extract(distance []float64) []Effort {
	if len(distance) < 2 {
		return nil
	}

	var results []Effort
	for _, target := range Targets {
		if effort, ok := fastestWindow(distance, target); ok {
			results = append(results, effort)
		}
	}
	return results
}

// fastestWindow finds the minimum-duration window [start, end) with
// distance[end]-distance[start] >= target. Both pointers only move
// forward, so the sweep is O(n) per target.
func fastestWindow(distance []float64, target float64) (Effort, bool) {
	n := len(distance)
	best := Effort{TargetMeters: target}
	found := false

	end := 1
	for start := 0; start < n-1; start++ {
		if end <= start {
			end = start + 1
		}
		for end < n && distance[end]-distance[start] < target {
			end++
		}
		if end == n {
			// The trace is non-decreasing, so later starts cover even
			// less distance. Nothing more to find for this target.
			break
		}

		duration := end - start
		if !found || duration < best.DurationSec {
			best.StartIndex = start
			best.EndIndex = end
			best.DurationSec = duration
			found = true
		}
	}

	return best, found
}

// Clamp returns a copy of the trace with negative jumps removed so the
// series is monotonically non-decreasing. Raw device streams occasionally
// report a smaller cumulative distance after GPS corrections.
func Clamp(distance []float64) []float64 {
	if len(distance) == 0 {
		return nil
	}
	out := make([]float64, len(distance))
	high := distance[0]
	if high < 0 {
		high = 0
	}
	out[0] = high
	for i := 1; i < len(distance); i++ {
		if distance[i] > high {
			high = distance[i]
		}
		out[i] = high
	}
	return out
}
