package metrics

import "testing"

type fakeRepo struct {
	counters map[string]float64
}

func (f fakeRepo) Metrics() (map[string]float64, error) {
	return f.counters, nil
}

func TestCollectDerivesResponseLossRate(t *testing.T) {
	repo := fakeRepo{counters: map[string]float64{
		deliveredMetric: 9,
		droppedMetric:   1,
		"other_count":   42,
	}}

	snap, err := Collect(repo)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.ResponseLossRate != 0.1 {
		t.Fatalf("expected loss rate 0.1, got %v", snap.ResponseLossRate)
	}
	if snap.Counters["other_count"] != 42 {
		t.Fatalf("expected passthrough counter preserved, got %v", snap.Counters["other_count"])
	}
}

func TestCollectWithNoTrafficHasZeroRate(t *testing.T) {
	repo := fakeRepo{counters: map[string]float64{}}

	snap, err := Collect(repo)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.ResponseLossRate != 0 {
		t.Fatalf("expected zero loss rate with no traffic, got %v", snap.ResponseLossRate)
	}
}
