package workouts

import (
	"strconv"
	"time"

	"github.com/2beens/formcoach/internal/formcheck"
)

const (
	MetaSource     = "source"
	MetaSessionID  = "session_id"
	MetaHalfReps   = "half_reps"
	MetaFrames     = "frames"
	MetaDurationMs = "duration_ms"
	// MetaErrorPrefix prefixes per form error counts, e.g. error_excessive_sway.
	MetaErrorPrefix = "error_"
)

// Set is one finished set, stored in the same shape the gym stats backend
// stores manually logged sets.
type Set struct {
	ID          int               `json:"id"`
	ExerciseID  string            `json:"exerciseId"`
	MuscleGroup string            `json:"muscleGroup"`
	Kilos       int               `json:"kilos"`
	Reps        int               `json:"reps"`
	CreatedAt   time.Time         `json:"createdAt"`
	Metadata    map[string]string `json:"metadata"`
}

// NewSet builds the set for a finished session.
func NewSet(sessionID, muscleGroup string, kilos int, summary formcheck.Summary, createdAt time.Time) Set {
	metadata := map[string]string{
		MetaSource:     "formcoach",
		MetaSessionID:  sessionID,
		MetaHalfReps:   strconv.Itoa(int(summary.Count * 2)),
		MetaFrames:     strconv.Itoa(summary.Frames),
		MetaDurationMs: strconv.FormatInt(summary.Duration.Milliseconds(), 10),
	}
	for code, n := range summary.ErrorAppearances {
		metadata[MetaErrorPrefix+string(code)] = strconv.Itoa(n)
	}

	return Set{
		ExerciseID:  summary.ExerciseID,
		MuscleGroup: muscleGroup,
		Kilos:       kilos,
		Reps:        summary.FullReps,
		CreatedAt:   createdAt,
		Metadata:    metadata,
	}
}

// ErrorCounts reads the per code error counts back from the metadata.
func (s Set) ErrorCounts() map[formcheck.ErrorCode]int {
	counts := make(map[formcheck.ErrorCode]int)
	for k, v := range s.Metadata {
		if len(k) <= len(MetaErrorPrefix) || k[:len(MetaErrorPrefix)] != MetaErrorPrefix {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		counts[formcheck.ErrorCode(k[len(MetaErrorPrefix):])] = n
	}
	return counts
}
