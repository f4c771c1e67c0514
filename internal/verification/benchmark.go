package verification

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/JaimeStill/emissary/audit"
)

// RouteType adjusts a benchmark for the kind of lane a shipment travels.
type RouteType string

const (
	RouteDomestic      RouteType = "domestic"
	RouteInternational RouteType = "international"
	RouteExpress       RouteType = "express"
)

var (
	internationalKeywords = []string{"international", "overseas", "export", "import", "cross-border"}
	expressKeywords       = []string{"express", "urgent", "priority", "expedited"}
)

// ClassifyRoute derives the route type from a free-text route. Express
// keywords are checked last and take precedence.
func ClassifyRoute(route string) RouteType {
	r := strings.ToLower(route)
	rt := RouteDomestic
	if containsAny(r, internationalKeywords) {
		rt = RouteInternational
	}
	if containsAny(r, expressKeywords) {
		rt = RouteExpress
	}
	return rt
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Shipment is the input to a benchmark lookup.
type Shipment struct {
	Mode       audit.TransportMode
	WeightKG   float64
	DistanceKM float64
	Route      RouteType
}

// Estimate is a benchmark emission figure and the confidence in it.
type Estimate struct {
	CO2e       float64
	Confidence float64
}

// Benchmark computes the expected emissions for a shipment.
type Benchmark interface {
	Estimate(ctx context.Context, s Shipment) (Estimate, error)
}

const (
	knownModeConfidence   = 0.85
	unknownModeConfidence = 0.60
	jitterSpread          = 0.05
)

// Logistics is a table-driven Benchmark: factor (kg CO2e per ton-km) times
// tons times km, scaled by the route adjustment and rounded to 2 decimals.
type Logistics struct {
	factors Factors

	mu     sync.Mutex
	jitter *rand.Rand
}

// LogisticsOption configures a Logistics benchmark.
type LogisticsOption func(*Logistics)

// WithJitter applies a uniform ±5% variance drawn from r.
func WithJitter(r *rand.Rand) LogisticsOption {
	return func(l *Logistics) { l.jitter = r }
}

// NewLogistics creates a Logistics benchmark over f.
func NewLogistics(f Factors, opts ...LogisticsOption) *Logistics {
	l := &Logistics{factors: f}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Estimate implements Benchmark. Unknown modes use the road factor at
// reduced confidence.
func (l *Logistics) Estimate(_ context.Context, s Shipment) (Estimate, error) {
	confidence := knownModeConfidence
	factor, ok := l.factors.Modes[s.Mode]
	if !ok {
		factor = l.factors.Modes[audit.ModeRoad]
		confidence = unknownModeConfidence
	}

	adjust, ok := l.factors.Routes[s.Route]
	if !ok {
		adjust = 1.0
	}

	co2e := factor * (s.WeightKG / 1000) * s.DistanceKM * adjust
	co2e *= l.variance()

	return Estimate{
		CO2e:       math.Round(co2e*100) / 100,
		Confidence: confidence,
	}, nil
}

func (l *Logistics) variance() float64 {
	if l.jitter == nil {
		return 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return 1 - jitterSpread + l.jitter.Float64()*2*jitterSpread
}
