package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/talkback-labs/talkback/internal/audio"
	"github.com/talkback-labs/talkback/internal/config"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	timeoutMS  int
	mu         sync.Mutex
}

// NewExecSynth wraps a piper-style CLI that reads text on stdin and writes
// raw 16-bit PCM on stdout. The wav container is added here so callers always
// receive a playable payload.
func NewExecSynth(cfg config.TTSConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command is empty")
	}
	return &execSynth{cmd: args, sampleRate: cfg.SampleRate, channels: cfg.Channels, timeoutMS: cfg.TimeoutMS}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text, modelPath string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.timeoutMS)*time.Millisecond)
		defer cancel()
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	if modelPath != "" {
		args = append(args, "--model", modelPath)
	}

	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("tts command produced no audio")
	}

	wavBytes, err := audio.EncodeWAV(pcm, e.sampleRate, e.channels)
	if err != nil {
		return nil, fmt.Errorf("wrap tts output: %w", err)
	}
	return wavBytes, nil
}
