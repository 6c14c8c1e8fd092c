package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talkback-labs/talkback/internal/audio"
	"github.com/talkback-labs/talkback/internal/config"
	"github.com/talkback-labs/talkback/internal/grammar"
	"github.com/talkback-labs/talkback/internal/journal"
	"github.com/talkback-labs/talkback/internal/pipeline"
	"github.com/talkback-labs/talkback/internal/stt"
)

type stubNormalizer struct{ err error }

func (s *stubNormalizer) Normalize(_ context.Context, container []byte, _ string) (*audio.Normalized, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &audio.Normalized{PCM: container, SampleRate: 16000, Channels: 1}, nil
}

type stubRecognizer struct {
	text string
	lang string
}

func (s *stubRecognizer) Transcribe(context.Context, *audio.Normalized) (stt.Result, error) {
	return stt.Result{Text: s.text, Lang: s.lang}, nil
}

type stubChecker struct {
	corrected string
	err       error
}

func (s *stubChecker) Check(_ context.Context, text, _ string) (grammar.Result, error) {
	if s.err != nil {
		return grammar.Result{}, s.err
	}
	if s.corrected == "" {
		return grammar.Result{Corrected: text}, nil
	}
	return grammar.Result{Corrected: s.corrected}, nil
}

type stubSynth struct{ wav []byte }

func (s *stubSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	return s.wav, nil
}

func newTestServer(t *testing.T, engines pipeline.Engines) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	voices := map[string]string{"en": "en.onnx", "de": "de.onnx", "tr": "tr.onnx"}
	orch := pipeline.New(engines, voices, "en", logger)
	cfg := config.Default().HTTP
	srv := NewServer(cfg, orch, logger, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func uploadBody(t *testing.T, email string, withAudio bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if email != "" {
		if err := mw.WriteField("email", email); err != nil {
			t.Fatalf("write email field: %v", err)
		}
	}
	if withAudio {
		part, err := mw.CreateFormFile("audio", "recording.webm")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write([]byte("webm-container-bytes")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, ts *httptest.Server, email string, withAudio bool) *http.Response {
	t.Helper()
	body, contentType := uploadBody(t, email, withAudio)
	resp, err := http.Post(ts.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadEnglishReturnsAudio(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{text: "this are a test", lang: "en"},
		Checker:    &stubChecker{corrected: "this is a test"},
		Synth:      &stubSynth{wav: []byte("RIFFwavdata")},
	})

	resp := postUpload(t, ts, "user@example.com", true)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
	if resp.Header.Get("X-Detected-Lang") != "en" {
		t.Fatal("missing X-Detected-Lang: en")
	}
	if resp.Header.Get("X-Corrected-Text") != "this is a test" {
		t.Fatal("missing corrected text header")
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "RIFFwavdata" {
		t.Fatal("body is not the synthesized wav")
	}
}

func TestUploadTurkishSynthesizesRawTranscript(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{text: "gunaydin", lang: "tr"},
		Checker:    &stubChecker{err: errors.New("must not be called")},
		Synth:      &stubSynth{wav: []byte("RIFF")},
	})

	resp := postUpload(t, ts, "user@example.com", true)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Corrected-Text") != "gunaydin" {
		t.Fatalf("expected raw transcript in header, got %q", resp.Header.Get("X-Corrected-Text"))
	}
	if resp.Header.Get("X-Detected-Lang") != "tr" {
		t.Fatal("expected detected lang tr")
	}
}

func TestUploadFrenchReturnsTextOnly(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{text: "bonjour tout le monde", lang: "fr"},
		Checker:    &stubChecker{},
		Synth:      &stubSynth{wav: []byte("RIFF")},
	})

	resp := postUpload(t, ts, "user@example.com", true)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["text"] != "bonjour tout le monde" || payload["lang"] != "fr" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestUploadCorruptAudioReturnsDecodeError(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{err: errors.New("invalid data found when processing input")},
		Recognizer: &stubRecognizer{lang: "en"},
		Synth:      &stubSynth{},
	})

	resp := postUpload(t, ts, "user@example.com", true)
	if resp.StatusCode != 422 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["stage"] != "normalize" || payload["error"] == "" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestUploadMissingFields(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{lang: "en"},
		Synth:      &stubSynth{wav: []byte("RIFF")},
	})

	resp := postUpload(t, ts, "", true)
	if resp.StatusCode != 400 {
		t.Fatalf("missing email: status = %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["stage"] != "validate" {
		t.Fatalf("payload = %v", payload)
	}

	resp = postUpload(t, ts, "user@example.com", false)
	if resp.StatusCode != 400 {
		t.Fatalf("missing audio: status = %d", resp.StatusCode)
	}
}

type stubRunLister struct {
	runs []journal.Run
	err  error
}

func (s *stubRunLister) ListRecent(_ context.Context, limit int) ([]journal.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func TestListRunsEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.New(pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{lang: "en"},
		Synth:      &stubSynth{},
	}, nil, "en", logger)

	srv := NewServer(config.Default().HTTP, orch, logger, nil)
	srv.SetRunLister(&stubRunLister{runs: []journal.Run{
		{RunID: "r2", Email: "b@example.com", Outcome: "text"},
		{RunID: "r1", Email: "a@example.com", Outcome: "audio"},
	}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs?limit=1")
	if err != nil {
		t.Fatalf("get runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var runs []journal.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestListRunsAbsentWithoutJournal(t *testing.T) {
	ts := newTestServer(t, pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{lang: "en"},
		Synth:      &stubSynth{},
	})

	resp, err := http.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatalf("get runs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.New(pipeline.Engines{
		Normalizer: &stubNormalizer{},
		Recognizer: &stubRecognizer{lang: "en"},
		Synth:      &stubSynth{},
	}, nil, "en", logger)

	ready := false
	srv := NewServer(config.Default().HTTP, orch, logger, func() bool { return ready })
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthz: %v %v", err, resp)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready: %v %v", err, resp)
	}
	resp.Body.Close()

	ready = true
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("readyz after ready: %v %v", err, resp)
	}
	resp.Body.Close()
}
