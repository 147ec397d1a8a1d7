package formcheck

import "strings"

// ErrorCode identifies a form rule violation.
type ErrorCode string

const (
	InsufficientExtension ErrorCode = "insufficient_extension"
	OverContraction       ErrorCode = "over_contraction"
	ShoulderInstability   ErrorCode = "shoulder_instability"
	ExcessiveSway         ErrorCode = "excessive_sway"
	WristMisalignment     ErrorCode = "wrist_misalignment"
	ExcessiveSpeed        ErrorCode = "excessive_speed"
)

var defaultMessages = map[ErrorCode]string{
	InsufficientExtension: "Extend your arm fully",
	OverContraction:       "Don't squeeze too much at the top",
	ShoulderInstability:   "Keep your shoulders steady",
	ExcessiveSway:         "Reduce body sway",
	WristMisalignment:     "Keep your wrist straight",
	ExcessiveSpeed:        "Slow down movement",
}

// speech phrases that don't follow the "Please <message>" pattern
var speechOverrides = map[ErrorCode]string{
	OverContraction: "Avoid over-squeezing at the top position",
}

func (c ErrorCode) String() string {
	return string(c)
}

// DefaultMessage returns the built-in message for c, or the code itself
// for codes introduced by custom exercise definitions.
func (c ErrorCode) DefaultMessage() string {
	if msg, ok := defaultMessages[c]; ok {
		return msg
	}
	return strings.ReplaceAll(string(c), "_", " ")
}

type FormError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}
