package compliance

import "github.com/JaimeStill/emissary/audit"

// Breakdown is the quantitative trust score and its three components.
type Breakdown struct {
	Completeness float64 `json:"data_completeness_score"`
	Verification float64 `json:"verification_quality_score"`
	Disclosure   float64 `json:"disclosure_standards_score"`
	Total        float64 `json:"base_score"`
}

// BaseScore computes completeness (0-30), verification quality (0-40,
// scaled by verification confidence), and disclosure (0-30).
func BaseScore(ext *audit.ExtractionResult, ver *audit.VerificationResult, maxDeviation float64) Breakdown {
	if ext == nil || ver == nil {
		return Breakdown{}
	}

	var b Breakdown
	b.Completeness = 30 * float64(ext.FieldsPresent()) / 6

	switch ver.Status {
	case audit.VerificationAcceptable:
		b.Verification = 40
	case audit.VerificationFlagged:
		if ver.DeviationPercent != nil {
			if *ver.DeviationPercent < 2*maxDeviation {
				b.Verification = 20
			} else {
				b.Verification = 10
			}
		}
	}
	b.Verification *= ver.VerificationConfidence

	b.Disclosure = 15 + 15*ext.ExtractionConfidence

	b.Total = audit.ClampScore(b.Completeness + b.Verification + b.Disclosure)
	return b
}

// Blend weights the model score at 70% and the base score at 30%.
func Blend(model, base float64) float64 {
	return audit.ClampScore(0.7*model + 0.3*base)
}
