package tts

import (
	"context"

	"github.com/talkback-labs/talkback/internal/audio"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth emits a short burst of silence in a valid wav container.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pcm := make([]byte, m.sampleRate/10*2) // 100ms of silence
	return audio.EncodeWAV(pcm, m.sampleRate, m.channels)
}
