package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a state of one run.
type Stage string

const (
	StageIntake      Stage = "intake"
	StageStaged      Stage = "staged"
	StageMerged      Stage = "merged"
	StagePublished   Stage = "published"
	StageTranscribed Stage = "transcribed"
	StageAnalyzed    Stage = "analyzed"
	StagePersisted   Stage = "persisted"
	StageNotified    Stage = "notified"
	StageResponded   Stage = "responded"
	StageFailed      Stage = "failed"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindTranscoding   Kind = "transcoding"
	KindStorage       Kind = "storage"
	KindTranscription Kind = "transcription"
	KindAnalysis      Kind = "analysis"
	KindPersistence   Kind = "persistence"
	KindNotification  Kind = "notification"
)

var publicMessages = map[Kind]string{
	KindTranscoding:   "audio merge failed",
	KindStorage:       "recording upload failed",
	KindTranscription: "transcription failed",
	KindAnalysis:      "transcript analysis failed",
	KindPersistence:   "saving meeting failed",
}

// StageError is returned by Run; Stage is the last state reached before failing.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s error after %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Public is the message safe to return to clients. Validation errors are
// the client's own input; everything else is reduced to a fixed message.
func (e *StageError) Public() string {
	if e.Kind == KindValidation {
		return e.Err.Error()
	}
	if msg, ok := publicMessages[e.Kind]; ok {
		return msg
	}
	return "internal error"
}

// Validation builds a client-fault error.
func Validation(format string, args ...any) error {
	return &StageError{Stage: StageIntake, Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind, or "" for foreign errors.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
