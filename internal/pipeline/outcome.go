package pipeline

import (
	"errors"
	"time"
)

// Stage names, as surfaced in error responses and the run journal.
const (
	StageValidate   = "validate"
	StageNormalize  = "normalize"
	StageTranscribe = "transcription"
	StagePlan       = "plan"
	StageCorrect    = "correction"
	StageSynthesize = "synthesis"
)

// Error kinds. ErrCorrection is recoverable: the orchestrator logs it and
// continues with the uncorrected transcript, so it never appears in a Failed
// outcome. Every other kind is terminal for the request.
var (
	ErrValidation  = errors.New("invalid request")
	ErrDecode      = errors.New("audio decode failed")
	ErrRecognition = errors.New("recognition engine failed")
	ErrCorrection  = errors.New("correction engine failed")
	ErrSynthesis   = errors.New("synthesis engine failed")
)

// Request is one upload to process. Owned by a single Run invocation.
type Request struct {
	Email    string
	Audio    []byte
	MimeType string
}

// Kind tags the outcome variant.
type Kind string

const (
	KindAudio  Kind = "audio"
	KindText   Kind = "text"
	KindFailed Kind = "failed"
)

// Outcome is the sole artifact a pipeline run yields. Exactly one variant is
// populated: WAV+Text+Lang for audio, Text+Lang for text-only, Stage+Err for
// failure.
type Outcome struct {
	Kind      Kind
	WAV       []byte
	Text      string
	Lang      string
	Corrected bool
	Stage     string
	Err       error
}

// RunRecord summarizes one completed run for observers. It carries metadata
// only: no audio bytes and no transcript text leave the request scope.
type RunRecord struct {
	RunID     string
	Email     string
	Lang      string
	Outcome   Kind
	Stage     string
	Error     string
	Corrected bool
	Duration  time.Duration
	StageMS   map[string]int64
	StartedAt time.Time
}

// Observer is notified after every run, success or failure.
type Observer interface {
	PipelineCompleted(rec RunRecord)
}
