package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestReleaseRemovesBackingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norm.wav")
	if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	n := &Normalized{WAVPath: path}
	if err := n.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected backing file removed, stat err = %v", err)
	}
	// second release is a no-op
	if err := n.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 8)
	for i, s := range []int16{100, -100, 32000, -32000} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	data, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing riff/wave header: %q", data[:12])
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if string(got) != string(pcm) {
		t.Fatalf("pcm mismatch: got %v want %v", got, pcm)
	}
}

func TestSuffixForMimeTypes(t *testing.T) {
	cases := map[string]string{
		"audio/webm;codecs=opus": ".webm",
		"audio/ogg":              ".ogg",
		"audio/mpeg":             ".mp3",
		"audio/wav":              ".wav",
		"":                       ".webm",
	}
	for mime, want := range cases {
		if got := suffixFor(mime); got != want {
			t.Errorf("suffixFor(%q) = %q, want %q", mime, got, want)
		}
	}
}
