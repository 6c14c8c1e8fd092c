package stt

import (
	"context"
	"fmt"

	"github.com/talkback-labs/talkback/internal/audio"
)

type mockRecognizer struct {
	lang string
}

// NewMockRecognizer reports a fixed language and a synthetic transcript.
func NewMockRecognizer(lang string) Recognizer {
	return &mockRecognizer{lang: lang}
}

func (m *mockRecognizer) Transcribe(_ context.Context, in *audio.Normalized) (Result, error) {
	return Result{
		Text: fmt.Sprintf("[transcript length=%d]", len(in.PCM)),
		Lang: m.lang,
	}, nil
}
