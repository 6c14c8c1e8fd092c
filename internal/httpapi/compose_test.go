package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/talkback-labs/talkback/internal/pipeline"
)

func TestWriteOutcomeAudio(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOutcome(rec, pipeline.Outcome{
		Kind: pipeline.KindAudio,
		WAV:  []byte("RIFFdata"),
		Text: "this is a test",
		Lang: "en",
	})

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Header().Get(headerDetectedLang) != "en" {
		t.Fatal("missing detected-lang header")
	}
	if rec.Header().Get(headerCorrectedText) != "this is a test" {
		t.Fatal("missing corrected-text header")
	}
	if rec.Body.String() != "RIFFdata" {
		t.Fatal("body is not the wav payload")
	}
}

func TestWriteOutcomeAudioSkipsNonASCIIHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOutcome(rec, pipeline.Outcome{
		Kind: pipeline.KindAudio,
		WAV:  []byte("RIFF"),
		Text: "schöne Grüße",
		Lang: "de",
	})
	if got := rec.Header().Get(headerCorrectedText); got != "" {
		t.Fatalf("non-ascii text must not be set as header, got %q", got)
	}
	if rec.Header().Get(headerDetectedLang) != "de" {
		t.Fatal("detected-lang header should still be set")
	}
}

func TestWriteOutcomeText(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOutcome(rec, pipeline.Outcome{Kind: pipeline.KindText, Text: "bonjour", Lang: "fr"})

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["text"] != "bonjour" || payload["lang"] != "fr" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestWriteOutcomeFailureStatuses(t *testing.T) {
	cases := []struct {
		err    error
		stage  string
		status int
	}{
		{fmt.Errorf("%w: missing email", pipeline.ErrValidation), pipeline.StageValidate, 400},
		{fmt.Errorf("%w: ffmpeg exited 1", pipeline.ErrDecode), pipeline.StageNormalize, 422},
		{fmt.Errorf("%w: whisper crashed", pipeline.ErrRecognition), pipeline.StageTranscribe, 502},
		{fmt.Errorf("%w: model missing", pipeline.ErrSynthesis), pipeline.StageSynthesize, 502},
		{errors.New("surprise"), pipeline.StageSynthesize, 500},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeOutcome(rec, pipeline.Outcome{Kind: pipeline.KindFailed, Stage: tc.stage, Err: tc.err})
		if rec.Code != tc.status {
			t.Errorf("status for %v = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var payload map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if payload["stage"] != tc.stage {
			t.Errorf("stage = %q, want %q", payload["stage"], tc.stage)
		}
		if payload["error"] == "" {
			t.Error("expected an error message")
		}
	}
}

func TestPublicMessageHidesEngineDetail(t *testing.T) {
	err := fmt.Errorf("%w: /usr/bin/whisper: exit status 1: segfault at 0x0", pipeline.ErrRecognition)
	if got := publicMessage(err); got != pipeline.ErrRecognition.Error() {
		t.Fatalf("engine detail leaked: %q", got)
	}
}
