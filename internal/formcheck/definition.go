package formcheck

import (
	"errors"
	"fmt"
	"time"

	"github.com/2beens/formcoach/internal/pose"
)

var ErrInvalidDefinition = errors.New("invalid exercise definition")

type SignalKind string

const (
	SignalAngle              SignalKind = "angle"
	SignalHorizontalDistance SignalKind = "horizontal_distance"
)

// RuleKind names a group of form rules that can be switched off per exercise.
type RuleKind string

const (
	RuleRangeOfMotion RuleKind = "range_of_motion"
	RuleStability     RuleKind = "stability"
	RuleAlignment     RuleKind = "alignment"
	RuleSpeed         RuleKind = "speed"
)

// StabilitySignal is a scalar tracked over a rolling window. Angle signals
// use Angle, horizontal distance signals use From and To.
type StabilitySignal struct {
	Name      string       `toml:"name" json:"name"`
	Kind      SignalKind   `toml:"kind" json:"kind"`
	Angle     pose.Triple  `toml:"angle" json:"angle"`
	From      pose.JointID `toml:"from" json:"from,omitempty"`
	To        pose.JointID `toml:"to" json:"to,omitempty"`
	Threshold float64      `toml:"threshold" json:"threshold"`
	Code      ErrorCode    `toml:"code" json:"code"`
	// Speed marks the primary stabilizing signal, the one whose
	// frame-to-frame delta feeds the speed rule.
	Speed bool `toml:"speed" json:"speed"`
}

// AlignmentRule accepts a secondary angle only within [Min, Max].
type AlignmentRule struct {
	Name  string      `toml:"name" json:"name"`
	Angle pose.Triple `toml:"angle" json:"angle"`
	Min   float64     `toml:"min" json:"min"`
	Max   float64     `toml:"max" json:"max"`
	Code  ErrorCode   `toml:"code" json:"code"`
}

// Definition holds every exercise specific parameter of the counting and
// form checking pipeline. WithDefaults fills the tuning fields whose zero
// value is unusable. BottomProgress, TransitionMargin and CooldownSec are
// honored as given, zero included.
type Definition struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	MuscleGroup string `toml:"muscle_group" json:"muscleGroup"`

	Primary         pose.Triple `toml:"primary" json:"primary"`
	ContractedAngle float64     `toml:"contracted_angle" json:"contractedAngle"`
	ExtendedAngle   float64     `toml:"extended_angle" json:"extendedAngle"`

	ExtensionSlack   float64 `toml:"extension_slack" json:"extensionSlack"`
	ContractionSlack float64 `toml:"contraction_slack" json:"contractionSlack"`

	TopProgress float64 `toml:"top_progress" json:"topProgress"`
	// BottomProgress 0 credits the bottom only at full extension.
	BottomProgress float64 `toml:"bottom_progress" json:"bottomProgress"`
	// TransitionMargin 0 disables the angle hysteresis around the extremes.
	TransitionMargin float64 `toml:"transition_margin" json:"transitionMargin"`

	WindowSize     int     `toml:"window_size" json:"windowSize"`
	SpeedThreshold float64 `toml:"speed_threshold" json:"speedThreshold"`
	MinConfidence  float64 `toml:"min_confidence" json:"minConfidence"`

	// CooldownSec 0 emits every pending notification on the next frame.
	CooldownSec float64 `toml:"cooldown_sec" json:"cooldownSec"`
	MaxPending  int     `toml:"max_pending" json:"maxPending"`

	Stability     []StabilitySignal    `toml:"stability" json:"stability"`
	Alignment     []AlignmentRule      `toml:"alignment" json:"alignment"`
	DisabledRules []RuleKind           `toml:"disabled_rules" json:"disabledRules,omitempty"`
	Messages      map[ErrorCode]string `toml:"messages" json:"messages,omitempty"`
}

const (
	DefaultTopProgress      = 95
	DefaultBottomProgress   = 5
	DefaultTransitionMargin = 15
	DefaultSpeedThreshold   = 5
	DefaultCooldown         = 5 * time.Second
	DefaultMaxPending       = 16
)

// BicepCurl returns the curl definition: elbow angle between 60 (fully
// contracted) and 160 (fully extended) degrees, shoulder and hip sway
// stability, wrist alignment.
func BicepCurl() Definition {
	return Definition{
		ID:               "bicep_curl",
		Name:             "Bicep Curl",
		MuscleGroup:      "biceps",
		Primary:          pose.Triple{A: pose.LeftShoulder, Vertex: pose.LeftElbow, B: pose.LeftWrist},
		ContractedAngle:  60,
		ExtendedAngle:    160,
		ExtensionSlack:   25,
		ContractionSlack: 45,
		TopProgress:      DefaultTopProgress,
		BottomProgress:   DefaultBottomProgress,
		TransitionMargin: DefaultTransitionMargin,
		WindowSize:       DefaultWindowSize,
		SpeedThreshold:   DefaultSpeedThreshold,
		CooldownSec:      DefaultCooldown.Seconds(),
		MaxPending:       DefaultMaxPending,
		Stability: []StabilitySignal{
			{
				Name:      "shoulder_angle",
				Kind:      SignalAngle,
				Angle:     pose.Triple{A: pose.LeftHip, Vertex: pose.LeftShoulder, B: pose.LeftElbow},
				Threshold: 20,
				Code:      ShoulderInstability,
				Speed:     true,
			},
			{
				Name:      "hip_shoulder_sway",
				Kind:      SignalHorizontalDistance,
				From:      pose.LeftHip,
				To:        pose.LeftShoulder,
				Threshold: 0.1,
				Code:      ExcessiveSway,
			},
		},
		Alignment: []AlignmentRule{
			{
				Name:  "wrist",
				Angle: pose.Triple{A: pose.LeftElbow, Vertex: pose.LeftWrist, B: pose.LeftPinky},
				Min:   160,
				Max:   210,
				Code:  WristMisalignment,
			},
		},
	}
}

// WithDefaults returns a copy of d with the tuning fields that cannot be
// zero set to their defaults.
func (d Definition) WithDefaults() Definition {
	if d.TopProgress == 0 {
		d.TopProgress = DefaultTopProgress
	}
	if d.WindowSize == 0 {
		d.WindowSize = DefaultWindowSize
	}
	if d.SpeedThreshold == 0 {
		d.SpeedThreshold = DefaultSpeedThreshold
	}
	if d.MaxPending == 0 {
		d.MaxPending = DefaultMaxPending
	}
	return d
}

func (d Definition) Cooldown() time.Duration {
	return time.Duration(d.CooldownSec * float64(time.Second))
}

func (d Definition) RuleEnabled(kind RuleKind) bool {
	for _, disabled := range d.DisabledRules {
		if disabled == kind {
			return false
		}
	}
	return true
}

// Message returns the user facing message for code, honoring overrides.
func (d Definition) Message(code ErrorCode) string {
	if msg, ok := d.Messages[code]; ok && msg != "" {
		return msg
	}
	return code.DefaultMessage()
}

func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if err := validateTriple(d.Primary); err != nil {
		return fmt.Errorf("%w [%s]: primary: %s", ErrInvalidDefinition, d.ID, err)
	}
	if d.ContractedAngle >= d.ExtendedAngle {
		return fmt.Errorf("%w [%s]: contracted angle %.1f must be below extended angle %.1f",
			ErrInvalidDefinition, d.ID, d.ContractedAngle, d.ExtendedAngle)
	}
	if d.ExtensionSlack < 0 || d.ContractionSlack < 0 || d.TransitionMargin < 0 {
		return fmt.Errorf("%w [%s]: negative slack or margin", ErrInvalidDefinition, d.ID)
	}
	if d.BottomProgress >= d.TopProgress {
		return fmt.Errorf("%w [%s]: bottom progress %.1f must be below top progress %.1f",
			ErrInvalidDefinition, d.ID, d.BottomProgress, d.TopProgress)
	}
	if d.WindowSize < 2 {
		return fmt.Errorf("%w [%s]: window size %d too small", ErrInvalidDefinition, d.ID, d.WindowSize)
	}
	if d.CooldownSec < 0 || d.MaxPending < 0 {
		return fmt.Errorf("%w [%s]: negative cooldown or queue size", ErrInvalidDefinition, d.ID)
	}

	// signal values are reported in one map keyed by name
	names := make(map[string]bool, len(d.Stability)+len(d.Alignment))
	for _, s := range d.Stability {
		if names[s.Name] {
			return fmt.Errorf("%w [%s]: duplicate signal name [%s]", ErrInvalidDefinition, d.ID, s.Name)
		}
		names[s.Name] = true
	}
	for _, a := range d.Alignment {
		if names[a.Name] {
			return fmt.Errorf("%w [%s]: duplicate signal name [%s]", ErrInvalidDefinition, d.ID, a.Name)
		}
		names[a.Name] = true
	}

	speedSignals := 0
	for _, s := range d.Stability {
		if s.Code == "" {
			return fmt.Errorf("%w [%s]: stability signal %s without code", ErrInvalidDefinition, d.ID, s.Name)
		}
		if s.Threshold < 0 {
			return fmt.Errorf("%w [%s]: stability signal %s negative threshold", ErrInvalidDefinition, d.ID, s.Name)
		}
		switch s.Kind {
		case SignalAngle:
			if err := validateTriple(s.Angle); err != nil {
				return fmt.Errorf("%w [%s]: stability signal %s: %s", ErrInvalidDefinition, d.ID, s.Name, err)
			}
		case SignalHorizontalDistance:
			if !s.From.IsKnown() || !s.To.IsKnown() || s.From == s.To {
				return fmt.Errorf("%w [%s]: stability signal %s: invalid joints %s/%s",
					ErrInvalidDefinition, d.ID, s.Name, s.From, s.To)
			}
		default:
			return fmt.Errorf("%w [%s]: stability signal %s: unknown kind [%s]", ErrInvalidDefinition, d.ID, s.Name, s.Kind)
		}
		if s.Speed {
			speedSignals++
		}
	}
	if speedSignals > 1 {
		return fmt.Errorf("%w [%s]: more than one speed signal", ErrInvalidDefinition, d.ID)
	}

	for _, a := range d.Alignment {
		if a.Code == "" {
			return fmt.Errorf("%w [%s]: alignment rule %s without code", ErrInvalidDefinition, d.ID, a.Name)
		}
		if a.Min > a.Max {
			return fmt.Errorf("%w [%s]: alignment rule %s: min above max", ErrInvalidDefinition, d.ID, a.Name)
		}
		if err := validateTriple(a.Angle); err != nil {
			return fmt.Errorf("%w [%s]: alignment rule %s: %s", ErrInvalidDefinition, d.ID, a.Name, err)
		}
	}

	for _, r := range d.DisabledRules {
		switch r {
		case RuleRangeOfMotion, RuleStability, RuleAlignment, RuleSpeed:
		default:
			return fmt.Errorf("%w [%s]: unknown rule [%s]", ErrInvalidDefinition, d.ID, r)
		}
	}

	return nil
}

func validateTriple(t pose.Triple) error {
	for _, id := range []pose.JointID{t.A, t.Vertex, t.B} {
		if !id.IsKnown() {
			return fmt.Errorf("unknown joint [%s]", id)
		}
	}
	if t.A == t.Vertex || t.B == t.Vertex {
		return fmt.Errorf("vertex %s repeated in %s", t.Vertex, t)
	}
	return nil
}
