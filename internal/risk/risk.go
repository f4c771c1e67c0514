// Package risk scores a shipment's supplier and route against known
// high-risk regions and emission anomalies.
package risk

import (
	"fmt"
	"math"
	"strings"
)

// Level buckets an overall risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Assessment is the outcome of a supplier risk check.
type Assessment struct {
	SupplierID     string   `json:"supplier_id"`
	Score          int      `json:"overall_risk_score"`
	Factors        []string `json:"risk_factors"`
	RequiresReview bool     `json:"requires_human_review"`
	Level          Level    `json:"risk_level"`
}

// Input carries the record fields the assessment reads. Nil values are
// treated as unknown.
type Input struct {
	SupplierID *string
	Route      *string
	Claimed    *float64
	Benchmark  *float64
}

type category struct {
	title   string
	weight  int
	regions []string
}

const (
	regionReviewScore = 7
	minSupplierIDLen  = 5
)

// Assessor holds the region tables.
type Assessor struct {
	categories []category
}

// NewAssessor creates an Assessor with the built-in region tables.
func NewAssessor() *Assessor {
	return &Assessor{
		categories: []category{
			{
				title:  "Conflict Zones",
				weight: 10,
				regions: []string{
					"Afghanistan", "Syria", "Yemen", "Somalia", "South Sudan",
					"Libya", "Myanmar", "Iraq",
				},
			},
			{
				title:   "Sanctioned Countries",
				weight:  10,
				regions: []string{"North Korea", "Iran", "Cuba", "Venezuela", "Belarus"},
			},
			{
				title:   "High Corruption",
				weight:  7,
				regions: []string{"Turkmenistan", "Equatorial Guinea", "Eritrea", "Libya", "Yemen"},
			},
			{
				title:   "Environmental Risk",
				weight:  5,
				regions: []string{"Amazon Basin", "Congo Basin", "Southeast Asia"},
			},
		},
	}
}

// Region scores a free-text route against every region table. Review is
// required once the score reaches 7.
func (a *Assessor) Region(route string) (score int, factors []string, review bool) {
	r := strings.ToLower(route)
	for _, c := range a.categories {
		for _, region := range c.regions {
			if strings.Contains(r, strings.ToLower(region)) {
				score += c.weight
				factors = append(factors, fmt.Sprintf("%s: %s", c.title, region))
			}
		}
	}
	return score, factors, score >= regionReviewScore
}

// Assess runs the region, deviation, and supplier-id checks.
func (a *Assessor) Assess(in Input) Assessment {
	out := Assessment{Factors: []string{}}
	if in.SupplierID != nil {
		out.SupplierID = *in.SupplierID
	}

	if in.Route != nil {
		score, factors, review := a.Region(*in.Route)
		out.Score += score
		out.Factors = append(out.Factors, factors...)
		out.RequiresReview = review
	}

	if in.Claimed != nil && in.Benchmark != nil && *in.Claimed != 0 && *in.Benchmark != 0 {
		claimed, benchmark := *in.Claimed, *in.Benchmark
		dev := math.Abs(claimed-benchmark) / benchmark * 100

		switch {
		case dev > 50:
			out.Score += 8
			out.Factors = append(out.Factors, fmt.Sprintf("Extreme emission deviation: %.1f%%", dev))
			out.RequiresReview = true
		case dev > 25:
			out.Score += 5
			out.Factors = append(out.Factors, fmt.Sprintf("High emission deviation: %.1f%%", dev))
		}

		if claimed < benchmark*0.3 {
			out.Score += 6
			out.Factors = append(out.Factors, "Suspiciously low emissions (potential greenwashing)")
			out.RequiresReview = true
		}
	}

	if len(out.SupplierID) < minSupplierIDLen {
		out.Score += 3
		out.Factors = append(out.Factors, "Invalid or missing supplier ID")
	}

	switch {
	case out.Score >= 15:
		out.Level = LevelCritical
		out.RequiresReview = true
	case out.Score >= 10:
		out.Level = LevelHigh
		out.RequiresReview = true
	case out.Score >= 5:
		out.Level = LevelMedium
	default:
		out.Level = LevelLow
	}

	return out
}

// Reason summarizes an assessment as a human review reason.
func (a Assessment) Reason() string {
	return fmt.Sprintf("Supplier risk %s (score %d): %s", a.Level, a.Score, strings.Join(a.Factors, "; "))
}
