package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/talkback-labs/talkback/internal/config"
)

type execNormalizer struct {
	cmd []string
	cfg config.NormalizeConfig
}

// NewExecNormalizer builds a Normalizer that shells out to an ffmpeg-style
// converter. The configured command is only the binary plus fixed leading
// arguments; input/output paths and format flags are appended per call.
func NewExecNormalizer(cfg config.NormalizeConfig) (Normalizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse normalize command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("normalize command is empty")
	}
	return &execNormalizer{cmd: args, cfg: cfg}, nil
}

func (n *execNormalizer) Normalize(ctx context.Context, container []byte, mimeType string) (*Normalized, error) {
	if n.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(n.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	in, err := os.CreateTemp(os.TempDir(), "talkback_in_*"+suffixFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("temp input file: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(container); err != nil {
		in.Close()
		return nil, fmt.Errorf("write input container: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close input container: %w", err)
	}

	out, err := os.CreateTemp(os.TempDir(), "talkback_norm_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp output file: %w", err)
	}
	outPath := out.Name()
	out.Close()

	keep := false
	defer func() {
		if !keep {
			os.Remove(outPath)
		}
	}()

	base := n.cmd[0]
	args := append([]string{}, n.cmd[1:]...)
	args = append(args,
		"-hide_banner", "-loglevel", "error",
		"-i", in.Name(),
		"-ac", strconv.Itoa(n.cfg.Channels),
		"-ar", strconv.Itoa(n.cfg.SampleRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		"-y", outPath,
	)

	command := exec.CommandContext(ctx, base, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("audio conversion failed: %w: %s", err, stderr.String())
	}

	pcm, err := ReadWAV(outPath)
	if err != nil {
		return nil, fmt.Errorf("decode converted audio: %w", err)
	}

	keep = true
	return &Normalized{
		PCM:        pcm,
		SampleRate: n.cfg.SampleRate,
		Channels:   n.cfg.Channels,
		WAVPath:    outPath,
	}, nil
}

func suffixFor(mimeType string) string {
	mt := strings.ToLower(mimeType)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch strings.TrimSpace(mt) {
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		// browsers typically record webm/opus
		return ".webm"
	}
}
