package input

import (
	"fmt"
	"math"
	"strings"
)

// AccelProfile selects the pointer acceleration curve.
type AccelProfile int

const (
	AccelFlat AccelProfile = iota
	AccelAdaptive
)

const (
	// adaptiveThreshold is the per-event speed, in device units, above which
	// the adaptive curve starts to accelerate.
	adaptiveThreshold = 4.0
	adaptiveSlope     = 0.12
	adaptiveMaxFactor = 3.0
	minGain           = 0.1
)

func (p AccelProfile) String() string {
	switch p {
	case AccelFlat:
		return "flat"
	case AccelAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("AccelProfile(%d)", int(p))
	}
}

// ParseAccelProfile parses a profile name from the configuration.
func ParseAccelProfile(name string) (AccelProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "flat":
		return AccelFlat, nil
	case "adaptive", "":
		return AccelAdaptive, nil
	default:
		return AccelFlat, fmt.Errorf("unknown acceleration profile %q", name)
	}
}

// Accelerator turns raw relative motion into pointer motion.
type Accelerator struct {
	profile     AccelProfile
	sensitivity float64
}

// NewAccelerator returns an accelerator. Sensitivity is clamped to [-1, 1].
func NewAccelerator(profile AccelProfile, sensitivity float64) *Accelerator {
	return &Accelerator{
		profile:     profile,
		sensitivity: math.Max(-1, math.Min(1, sensitivity)),
	}
}

// Profile returns the active curve.
func (a *Accelerator) Profile() AccelProfile {
	return a.profile
}

// Sensitivity returns the clamped sensitivity.
func (a *Accelerator) Sensitivity() float64 {
	return a.sensitivity
}

// Apply scales a relative motion.
func (a *Accelerator) Apply(dx, dy float64) (float64, float64) {
	gain := math.Max(minGain, 1+a.sensitivity)
	if a.profile == AccelAdaptive {
		gain *= adaptiveFactor(math.Hypot(dx, dy))
	}
	return dx * gain, dy * gain
}

func adaptiveFactor(speed float64) float64 {
	if speed <= adaptiveThreshold {
		return 1
	}
	return math.Min(adaptiveMaxFactor, 1+(speed-adaptiveThreshold)*adaptiveSlope)
}
