package models

import "testing"

func TestRegionOverlapRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b Region
		want float64
	}{
		{"identical", Region{0, 0, 100, 100}, Region{0, 0, 100, 100}, 1.0},
		{"disjoint", Region{0, 0, 10, 10}, Region{50, 50, 10, 10}, 0},
		{"nested smaller fully inside", Region{0, 0, 100, 100}, Region{10, 10, 50, 50}, 1.0},
		{"half overlap of smaller", Region{0, 0, 100, 100}, Region{50, 0, 100, 100}, 0.5},
		{"empty region", Region{0, 0, 0, 0}, Region{0, 0, 10, 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.OverlapRatio(tt.b)
			if got != tt.want {
				t.Errorf("OverlapRatio=%v, want %v", got, tt.want)
			}
			// Symmetric by construction (ratio is against the smaller area).
			if rev := tt.b.OverlapRatio(tt.a); rev != got {
				t.Errorf("OverlapRatio not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestAskValidate(t *testing.T) {
	a := &Ask{}
	if err := a.Validate(); err == nil {
		t.Error("expected error for empty question")
	}
	a = &Ask{Question: "revenue?"}
	if err := a.Validate(); err != nil {
		t.Fatal(err)
	}
	if a.K != 8 {
		t.Errorf("default K=%d, want 8", a.K)
	}
	a = &Ask{Question: "q", K: 500}
	_ = a.Validate()
	if a.K != 50 {
		t.Errorf("K capped at %d, want 50", a.K)
	}
}
