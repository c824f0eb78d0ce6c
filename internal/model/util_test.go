package model

import (
	"math"
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want01, wantScore float64
	}{
		{-1, 0, 0},
		{0.5, 0.5, 0.5},
		{2, 1, 2},
		{250, 1, 100},
		{math.NaN(), 0, 0},
		{math.Inf(1), 1, 100},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want01 {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want01)
		}
		if got := ClampScore(tt.in); got != tt.wantScore {
			t.Errorf("ClampScore(%v) = %v, want %v", tt.in, got, tt.wantScore)
		}
	}
}

func TestMeanEmpty(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v", got)
	}
	if got := Mean([]float64{1, 2, 3}); got != 2 {
		t.Errorf("Mean = %v, want 2", got)
	}
}

func TestNewIDSortable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewIDAt(base)
	b := NewIDAt(base.Add(time.Second))
	if a >= b {
		t.Errorf("ids not ordered: %s >= %s", a, b)
	}
	if len(NewID()) != 26 {
		t.Errorf("unexpected id length")
	}
}

func TestTierRank(t *testing.T) {
	order := []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}
	for i, tier := range order {
		if tier.Rank() != i {
			t.Errorf("%s rank = %d, want %d", tier, tier.Rank(), i)
		}
	}
}
