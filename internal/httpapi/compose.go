package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/talkback-labs/talkback/internal/pipeline"
)

// Response metadata headers for audio outcomes. The final text travels out of
// band so the body stays pure wav.
const (
	headerDetectedLang  = "X-Detected-Lang"
	headerCorrectedText = "X-Corrected-Text"
)

type textPayload struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type errorPayload struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
}

// writeOutcome renders a pipeline outcome onto the wire: binary wav with
// metadata headers, a JSON text payload, or a JSON error naming the failed
// stage. The client always gets one of the three.
func writeOutcome(w http.ResponseWriter, out pipeline.Outcome) {
	switch out.Kind {
	case pipeline.KindAudio:
		w.Header().Set(headerDetectedLang, out.Lang)
		if isASCII(out.Text) {
			w.Header().Set(headerCorrectedText, out.Text)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.WAV)
	case pipeline.KindText:
		writeJSON(w, http.StatusOK, textPayload{Text: out.Text, Lang: out.Lang})
	default:
		writeJSON(w, statusFor(out.Err), errorPayload{Error: publicMessage(out.Err), Stage: out.Stage})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrRecognition), errors.Is(err, pipeline.ErrSynthesis):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage maps an error to client-safe wording. Engine failures keep
// only the kind; command output and process details stay in the logs.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return err.Error()
	case errors.Is(err, pipeline.ErrDecode):
		return pipeline.ErrDecode.Error()
	case errors.Is(err, pipeline.ErrRecognition):
		return pipeline.ErrRecognition.Error()
	case errors.Is(err, pipeline.ErrSynthesis):
		return pipeline.ErrSynthesis.Error()
	case err != nil:
		return "internal error"
	default:
		return "unknown error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// isASCII guards header values; non-ASCII corrected text is only available in
// the JSON variant (HTTP headers must stay ASCII-clean).
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
