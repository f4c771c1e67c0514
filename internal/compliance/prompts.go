package compliance

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/JaimeStill/emissary/audit"
)

//go:embed brsr.md
var brsrReference string

const referenceLimit = 3000

const systemPrompt = `You are an ESG compliance expert for SEBI BRSR value chain disclosures,
specifically Principle 6 essential indicator 2.

Score the audit findings from 0 to 100 weighting data completeness (30%),
verification quality (40%), and disclosure standards (30%). Be strict but fair.
A score of 60 or above indicates acceptable compliance.

Respond with a single JSON object and nothing else.

BRSR reference:
%s`

const promptSpec = `Return JSON with these keys:
  trust_score (number 0-100)
  brsr_aligned (boolean)
  recommendations (array of strings)
  compliance_details (object with data_completeness_score, verification_quality_score,
    disclosure_standards_score, principle_6_q2_compliance, key_strengths, key_weaknesses)`

func system() string {
	ref := brsrReference
	if len(ref) > referenceLimit {
		ref = ref[:referenceLimit]
	}
	return fmt.Sprintf(systemPrompt, ref)
}

func composePrompt(ext *audit.ExtractionResult, ver *audit.VerificationResult) string {
	var b strings.Builder

	b.WriteString("Audit findings:\n\nExtraction:\n")
	fmt.Fprintf(&b, "- CO2e claimed: %s kg\n", num(ext.CO2eClaimed))
	fmt.Fprintf(&b, "- Supplier ID: %s\n", str(ext.SupplierID))
	fmt.Fprintf(&b, "- Route: %s\n", str(ext.Route))
	mode := "Not found"
	if ext.TransportMode != nil {
		mode = string(*ext.TransportMode)
	}
	fmt.Fprintf(&b, "- Transport mode: %s\n", mode)
	fmt.Fprintf(&b, "- Weight: %s kg\n", num(ext.WeightKG))
	fmt.Fprintf(&b, "- Distance: %s km\n", num(ext.DistanceKM))
	fmt.Fprintf(&b, "- Extraction confidence: %.2f\n", ext.ExtractionConfidence)
	fmt.Fprintf(&b, "- Extraction errors: %s\n", list(ext.Errors))

	b.WriteString("\nVerification:\n")
	fmt.Fprintf(&b, "- Benchmark CO2e: %s kg\n", num(ver.BenchmarkCO2e))
	fmt.Fprintf(&b, "- Deviation: %s%%\n", num(ver.DeviationPercent))
	fmt.Fprintf(&b, "- Status: %s\n", ver.Status)
	fmt.Fprintf(&b, "- Discrepancies: %s\n", list(ver.Discrepancies))
	fmt.Fprintf(&b, "- Verification confidence: %.2f\n", ver.VerificationConfidence)

	b.WriteString("\nPrinciple 6 checklist:\n")
	fmt.Fprintf(&b, "- Energy consumption disclosed: %s\n", yesNo(ext.CO2eClaimed != nil, "Yes"))
	fmt.Fprintf(&b, "- Emission factor source cited: %s\n", yesNo(ver.BenchmarkCO2e != nil, "Partial (benchmark-based)"))
	fmt.Fprintf(&b, "- Methodology explained: %s\n", yesNo(ext.TransportMode != nil, "Yes (GHG Protocol)"))

	b.WriteString("\n")
	b.WriteString(promptSpec)
	return b.String()
}

func num(v *float64) string {
	if v == nil {
		return "Not found"
	}
	return fmt.Sprintf("%.1f", *v)
}

func str(v *string) string {
	if v == nil {
		return "Not found"
	}
	return *v
}

func list(v []string) string {
	if len(v) == 0 {
		return "None"
	}
	return strings.Join(v, ", ")
}

func yesNo(ok bool, yes string) string {
	if ok {
		return yes
	}
	return "No"
}
