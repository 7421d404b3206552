package capacity

import "testing"

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		available int
		want      Tier
	}{
		{100, TierHealthy},
		{30, TierHealthy},
		{29, TierModerate},
		{15, TierModerate},
		{14, TierHigh},
		{5, TierHigh},
		{4, TierCritical},
		{0, TierCritical},
	}
	for _, c := range cases {
		if got := TierFor(c.available); got != c.want {
			t.Errorf("TierFor(%d) = %s, want %s", c.available, got, c.want)
		}
	}
}

func TestAvailable(t *testing.T) {
	if got := Available(60); got != 40 {
		t.Fatalf("Available(60) = %d, want 40", got)
	}
	if got := Available(0); got != 100 {
		t.Fatalf("Available(0) = %d, want 100", got)
	}
}

func TestProject(t *testing.T) {
	p := Project(60, 20)
	if p.Projected != 80 || p.OverCapacity {
		t.Fatalf("Project(60,20) = %+v", p)
	}
	p = Project(90, 20)
	if p.Projected != 110 || !p.OverCapacity {
		t.Fatalf("Project(90,20) = %+v", p)
	}
	// exactly 100 is not over capacity
	p = Project(80, 20)
	if p.OverCapacity {
		t.Fatalf("Project(80,20) flagged over capacity")
	}
}

func TestClampIncrement(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {-5, 1}, {1, 1}, {10, 10}, {20, 20}, {21, 20}, {100, 20},
	}
	for _, c := range cases {
		if got := ClampIncrement(c.in); got != c.want {
			t.Errorf("ClampIncrement(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
