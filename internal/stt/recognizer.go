package stt

import (
	"context"

	"github.com/talkback-labs/talkback/internal/audio"
)

// Result captures recognizer output. Lang is the detected ISO-639 language
// code; the engine reports it even when the transcript is empty.
type Result struct {
	Text       string
	Lang       string
	Confidence float64
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, in *audio.Normalized) (Result, error)
}
