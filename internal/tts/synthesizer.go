package tts

import "context"

// Synthesizer converts final text into a complete wav payload using the
// voice model asset at modelPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, modelPath string) ([]byte, error)
}
