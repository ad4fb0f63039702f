package efforts

import (
	"math/rand"
	"testing"
)

// bruteForceMinDuration is the oracle: check every window.
func bruteForceMinDuration(distance []float64, target float64) (int, bool) {
	best := 0
	found := false
	for start := 0; start < len(distance); start++ {
		for end := start + 1; end < len(distance); end++ {
			if distance[end]-distance[start] >= target {
				if !found || end-start < best {
					best = end - start
					found = true
				}
				break
			}
		}
	}
	return best, found
}

func TestExtractShortTrace(t *testing.T) {
	if got := Extract(nil); got != nil {
		t.Errorf("Expected no efforts for nil trace, got %v", got)
	}
	if got := Extract([]float64{500}); got != nil {
		t.Errorf("Expected no efforts for single-sample trace, got %v", got)
	}
}

func TestExtractOmitsUnreachableTargets(t *testing.T) {
	// 600m covered: only the 400m target is reachable.
	trace := []float64{0, 100, 200, 300, 400, 500, 600}

	results := Extract(trace)
	if len(results) != 1 {
		t.Fatalf("Expected 1 effort, got %d: %v", len(results), results)
	}
	if results[0].TargetMeters != Target400m {
		t.Errorf("Expected 400m target, got %v", results[0].TargetMeters)
	}
	if results[0].DurationSec != 4 {
		t.Errorf("Expected duration 4, got %d", results[0].DurationSec)
	}
}

func TestExtractWindowCoversTarget(t *testing.T) {
	trace := []float64{0, 0, 100, 200, 300, 1000}

	for _, effort := range Extract(trace) {
		delta := trace[effort.EndIndex] - trace[effort.StartIndex]
		if delta < effort.TargetMeters {
			t.Errorf("Effort for %v covers only %v meters", effort.TargetMeters, delta)
		}
		if effort.DurationSec != effort.EndIndex-effort.StartIndex {
			t.Errorf("Duration %d does not match window [%d, %d)",
				effort.DurationSec, effort.StartIndex, effort.EndIndex)
		}
	}
}

func TestExtractStepTrace(t *testing.T) {
	// A flat warmup then one big jump: the fastest 1km window ends at the jump.
	trace := []float64{0, 0, 100, 200, 300, 1000}

	results := Extract(trace)
	var oneK *Effort
	for i := range results {
		if results[i].TargetMeters == Target1K {
			oneK = &results[i]
		}
	}
	if oneK == nil {
		t.Fatal("Expected a 1km effort")
	}
	if oneK.EndIndex != 5 {
		t.Errorf("Expected 1km window to end at index 5, got %d", oneK.EndIndex)
	}
	want, _ := bruteForceMinDuration(trace, Target1K)
	if oneK.DurationSec != want {
		t.Errorf("Expected minimal duration %d, got %d", want, oneK.DurationSec)
	}
}

func TestExtractMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(400)
		trace := make([]float64, n)
		var cum float64
		for i := 1; i < n; i++ {
			// Paces between standing still and a fast sprint.
			cum += rng.Float64() * 8
			trace[i] = cum
		}

		byTarget := make(map[float64]Effort)
		for _, e := range Extract(trace) {
			byTarget[e.TargetMeters] = e
		}

		for _, target := range Targets {
			want, reachable := bruteForceMinDuration(trace, target)
			got, ok := byTarget[target]
			if reachable != ok {
				t.Fatalf("trial %d target %v: reachable=%v but extracted=%v",
					trial, target, reachable, ok)
			}
			if ok && got.DurationSec != want {
				t.Fatalf("trial %d target %v: expected duration %d, got %d",
					trial, target, want, got.DurationSec)
			}
		}
	}
}

func TestClamp(t *testing.T) {
	in := []float64{0, 10, 5, 20, 18, 30}
	out := Clamp(in)
	want := []float64{0, 10, 10, 20, 20, 30}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Clamp index %d: expected %v, got %v", i, want[i], out[i])
		}
	}

	neg := Clamp([]float64{-5, -1, 3})
	if neg[0] != 0 || neg[1] != 0 || neg[2] != 3 {
		t.Errorf("Expected negative start clamped to zero, got %v", neg)
	}
}
