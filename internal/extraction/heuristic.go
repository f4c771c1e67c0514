package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/emissary/audit"
)

const (
	// HeuristicConfidence applies when the pattern extractor is the primary path.
	HeuristicConfidence = 0.6
	// FallbackConfidence applies when it runs after a failed model call.
	FallbackConfidence = 0.5

	kgPerTon   = 1000.0
	kmPerMile  = 1.60934
	numberExpr = `(\d[\d,]*(?:\.\d+)?)`
)

type quantity struct {
	re *regexp.Regexp
	// skip rejects a match whose trailing context disqualifies it, such as a
	// kilogram figure that is the emissions claim itself.
	skip func(m []string) bool
	// factor converts the matched unit to the canonical unit.
	factor func(m []string) float64
}

type labeled struct {
	re    *regexp.Regexp
	group int
}

type modeFamily struct {
	mode audit.TransportMode
	re   *regexp.Regexp
}

// Heuristic extracts shipment fields with ordered pattern lists. For each
// field the first pattern that matches wins.
type Heuristic struct {
	co2e     []*regexp.Regexp
	supplier []labeled
	route    []*regexp.Regexp
	modes    []modeFamily
	weight   []quantity
	distance []quantity
}

// NewHeuristic compiles the pattern lists.
func NewHeuristic() *Heuristic {
	tons := func(m []string) float64 {
		if strings.Contains(strings.ToLower(m[0]), "ton") {
			return kgPerTon
		}
		return 1
	}
	miles := func(m []string) float64 {
		if strings.Contains(strings.ToLower(m[0]), "mile") {
			return kmPerMile
		}
		return 1
	}
	none := func([]string) float64 { return 1 }

	return &Heuristic{
		co2e: []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + numberExpr + `\s*kg\s*CO2e`),
			regexp.MustCompile(`(?i)CO2e[:\s]+` + numberExpr + `\s*kg`),
			regexp.MustCompile(`(?i)emissions[:\s]+` + numberExpr + `\s*kg`),
			regexp.MustCompile(`(?i)carbon[:\s]+` + numberExpr + `\s*kg`),
		},
		supplier: []labeled{
			{regexp.MustCompile(`(?i)\bSUP-[A-Z]{2}-\d{4}-\d{3,4}\b`), 0},
			{regexp.MustCompile(`(?i)Supplier\s+ID[:\s]+([A-Z0-9-]+)`), 1},
			{regexp.MustCompile(`(?i)Vendor[:\s]+([A-Z0-9-]+)`), 1},
		},
		route: []*regexp.Regexp{
			regexp.MustCompile(`([A-Za-z][A-Za-z ]*?)[ \t]*(?:→|->)[ \t]*([A-Za-z][A-Za-z ]*)`),
			regexp.MustCompile(`(?is)\bOrigin[:\s]+([A-Za-z][A-Za-z ]*).*?\bDestination[:\s]+([A-Za-z][A-Za-z ]*)`),
			regexp.MustCompile(`(?is)\bFrom[:\s]+([A-Za-z][A-Za-z ]*).*?\bTo[:\s]+([A-Za-z][A-Za-z ]*)`),
		},
		modes: []modeFamily{
			{audit.ModeRoad, regexp.MustCompile(`(?i)\b(?:truck|road|highway|lorry|vehicle)\b`)},
			{audit.ModeAir, regexp.MustCompile(`(?i)\b(?:air|flight|aircraft|cargo plane)\b`)},
			{audit.ModeSea, regexp.MustCompile(`(?i)\b(?:sea|ship|vessel|maritime|ocean)\b`)},
			{audit.ModeRail, regexp.MustCompile(`(?i)\b(?:rail|train|railway)\b`)},
		},
		weight: []quantity{
			{
				re:     regexp.MustCompile(`(?i)weight[:\s]+` + numberExpr + `\s*(?:kg|kilograms?|(?:metric\s*)?(?:tons?|tonnes?))?`),
				factor: tons,
			},
			{
				re:     regexp.MustCompile(`(?i)` + numberExpr + `\s*(?:kg|kilograms?)\b(\s*CO2e?)?`),
				skip:   func(m []string) bool { return m[2] != "" },
				factor: none,
			},
			{
				re:     regexp.MustCompile(`(?i)` + numberExpr + `\s*(?:metric\s*)?(?:tons?|tonnes?)\b`),
				factor: tons,
			},
		},
		distance: []quantity{
			{
				re:     regexp.MustCompile(`(?i)distance[:\s]+` + numberExpr + `\s*(?:km|kilomet(?:er|re)s?|miles?)?`),
				factor: miles,
			},
			{
				re:     regexp.MustCompile(`(?i)` + numberExpr + `\s*(?:km|kilomet(?:er|re)s?)\b`),
				factor: none,
			},
			{
				re:     regexp.MustCompile(`(?i)` + numberExpr + `\s*miles?\b`),
				factor: miles,
			},
		},
	}
}

// Extract returns every field it can recognize in text, with confidence unset.
// It returns ErrNoFields when nothing is recognized.
func (h *Heuristic) Extract(text string) (*audit.ExtractionResult, error) {
	res := &audit.ExtractionResult{Errors: []string{}}

	res.CO2eClaimed = h.matchCO2e(text)
	res.SupplierID = h.matchSupplier(text)
	res.Route = h.matchRoute(text)
	res.TransportMode = h.matchMode(text)
	res.WeightKG = matchQuantity(h.weight, text)
	res.DistanceKM = matchQuantity(h.distance, text)

	if res.Empty() {
		return nil, ErrNoFields
	}
	return res, nil
}

func (h *Heuristic) matchCO2e(text string) *float64 {
	for _, re := range h.co2e {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseNumber(m[1]); ok {
				return &v
			}
		}
	}
	return nil
}

func (h *Heuristic) matchSupplier(text string) *string {
	for _, p := range h.supplier {
		if m := p.re.FindStringSubmatch(text); m != nil {
			v := strings.TrimSpace(m[p.group])
			return &v
		}
	}
	return nil
}

func (h *Heuristic) matchRoute(text string) *string {
	for _, re := range h.route {
		if m := re.FindStringSubmatch(text); m != nil {
			origin := strings.TrimSpace(m[1])
			dest := strings.TrimSpace(m[2])
			if origin == "" || dest == "" {
				continue
			}
			v := origin + "-" + dest
			return &v
		}
	}
	return nil
}

func (h *Heuristic) matchMode(text string) *audit.TransportMode {
	for _, f := range h.modes {
		if f.re.MatchString(text) {
			m := f.mode
			return &m
		}
	}
	return nil
}

func matchQuantity(patterns []quantity, text string) *float64 {
	for _, q := range patterns {
		for _, m := range q.re.FindAllStringSubmatch(text, -1) {
			if q.skip != nil && q.skip(m) {
				continue
			}
			v, ok := parseNumber(m[1])
			if !ok {
				continue
			}
			v *= q.factor(m)
			return &v
		}
	}
	return nil
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}
