package risk_test

import (
	"testing"

	"github.com/JaimeStill/emissary/internal/risk"
)

func ptr[T any](v T) *T { return &v }

func TestRegion(t *testing.T) {
	tests := []struct {
		route  string
		score  int
		review bool
	}{
		{"Mumbai to Delhi", 0, false},
		{"Afghanistan to Pakistan", 10, true},
		{"Iran to UAE", 10, true},
		{"Yemen to Oman", 17, true},
		{"Congo Basin to Luanda", 5, false},
	}

	a := risk.NewAssessor()
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			score, _, review := a.Region(tt.route)
			if score != tt.score || review != tt.review {
				t.Errorf("got (%d, %v), want (%d, %v)", score, review, tt.score, tt.review)
			}
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name   string
		in     risk.Input
		score  int
		level  risk.Level
		review bool
	}{
		{
			name:  "clean shipment",
			in:    risk.Input{SupplierID: ptr("SUP-MH-2024-089"), Route: ptr("Mumbai-Delhi"), Claimed: ptr(348.0), Benchmark: ptr(348.0)},
			score: 0,
			level: risk.LevelLow,
		},
		{
			name:  "high deviation and missing supplier",
			in:    risk.Input{Route: ptr("Pune-Nagpur"), Claimed: ptr(450.0), Benchmark: ptr(348.0)},
			score: 8,
			level: risk.LevelMedium,
		},
		{
			name:   "greenwashing in a conflict zone",
			in:     risk.Input{SupplierID: ptr("SUP-AF-2024-001"), Route: ptr("Kabul (Afghanistan) to Islamabad"), Claimed: ptr(50.0), Benchmark: ptr(200.0)},
			score:  24,
			level:  risk.LevelCritical,
			review: true,
		},
		{
			name:   "extreme deviation alone",
			in:     risk.Input{SupplierID: ptr("SUP-KA-2023-1234"), Claimed: ptr(600.0), Benchmark: ptr(348.0)},
			score:  8,
			level:  risk.LevelMedium,
			review: true,
		},
	}

	a := risk.NewAssessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assess(tt.in)
			if got.Score != tt.score || got.Level != tt.level || got.RequiresReview != tt.review {
				t.Errorf("got (%d, %s, %v) %v, want (%d, %s, %v)",
					got.Score, got.Level, got.RequiresReview, got.Factors, tt.score, tt.level, tt.review)
			}
		})
	}
}
