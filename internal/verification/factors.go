package verification

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/emissary/audit"
)

// Factors is the emission-factor table behind Logistics.
type Factors struct {
	Modes  map[audit.TransportMode]float64 `yaml:"modes"`
	Routes map[RouteType]float64           `yaml:"routes"`
}

// DefaultFactors returns industry-average freight factors.
func DefaultFactors() Factors {
	return Factors{
		Modes: map[audit.TransportMode]float64{
			audit.ModeAir:  0.602,
			audit.ModeSea:  0.016,
			audit.ModeRoad: 0.096,
			audit.ModeRail: 0.028,
		},
		Routes: map[RouteType]float64{
			RouteDomestic:      1.0,
			RouteInternational: 1.15,
			RouteExpress:       1.3,
		},
	}
}

// ParseFactors decodes a YAML factor table and overlays it on the defaults.
// Entries absent from the document keep their default value.
func ParseFactors(data []byte) (Factors, error) {
	var overlay Factors
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Factors{}, fmt.Errorf("%w: %w", ErrInvalidFactors, err)
	}

	f := DefaultFactors()
	for mode, v := range overlay.Modes {
		if !mode.Valid() {
			return Factors{}, fmt.Errorf("%w: unknown transport mode %q", ErrInvalidFactors, mode)
		}
		if v < 0 {
			return Factors{}, fmt.Errorf("%w: negative factor for %s", ErrInvalidFactors, mode)
		}
		f.Modes[mode] = v
	}
	for route, v := range overlay.Routes {
		switch route {
		case RouteDomestic, RouteInternational, RouteExpress:
		default:
			return Factors{}, fmt.Errorf("%w: unknown route type %q", ErrInvalidFactors, route)
		}
		if v <= 0 {
			return Factors{}, fmt.Errorf("%w: non-positive adjustment for %s", ErrInvalidFactors, route)
		}
		f.Routes[route] = v
	}

	return f, nil
}

// LoadFactors reads a YAML factor table from path. An empty path returns
// the defaults.
func LoadFactors(path string) (Factors, error) {
	if path == "" {
		return DefaultFactors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Factors{}, fmt.Errorf("read factors %s: %w", path, err)
	}

	return ParseFactors(data)
}
