package audio

import (
	"context"
	"os"
)

// Normalized is audio converted to the fixed format the recognizer expects:
// linear PCM, single channel, at the configured sample rate. It may be backed
// by a temporary wav file on disk; callers must call Release when done with it.
type Normalized struct {
	PCM        []byte
	SampleRate int
	Channels   int
	WAVPath    string
}

// Release removes the backing temporary file, if any. Safe to call twice.
func (n *Normalized) Release() error {
	if n == nil || n.WAVPath == "" {
		return nil
	}
	path := n.WAVPath
	n.WAVPath = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Normalizer converts an uploaded audio container into Normalized PCM.
type Normalizer interface {
	Normalize(ctx context.Context, container []byte, mimeType string) (*Normalized, error)
}
