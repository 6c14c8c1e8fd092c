package grammar

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talkback-labs/talkback/internal/config"
)

func TestApplyIssues(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		issues []Issue
		want   string
	}{
		{
			name: "single replacement",
			text: "this are a test",
			issues: []Issue{
				{Offset: 5, Length: 3, Message: "agreement", Replacement: "is"},
			},
			want: "this is a test",
		},
		{
			name: "multiple replacements keep offsets valid",
			text: "he go to school and she walk home",
			issues: []Issue{
				{Offset: 3, Length: 2, Replacement: "goes"},
				{Offset: 24, Length: 4, Replacement: "walks"},
			},
			want: "he goes to school and she walks home",
		},
		{
			name: "issue without replacement leaves text unchanged",
			text: "hello world",
			issues: []Issue{
				{Offset: 0, Length: 5, Message: "style"},
			},
			want: "hello world",
		},
		{
			name: "out of range issue is skipped",
			text: "short",
			issues: []Issue{
				{Offset: 10, Length: 4, Replacement: "nope"},
			},
			want: "short",
		},
		{
			name: "multibyte runes",
			text: "schone Grüße",
			issues: []Issue{
				{Offset: 0, Length: 6, Replacement: "schöne"},
			},
			want: "schöne Grüße",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := applyIssues(tc.text, tc.issues); got != tc.want {
				t.Fatalf("applyIssues = %q, want %q", got, tc.want)
			}
		})
	}
}

func newTestServer(t *testing.T, endpoint string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.GrammarConfig{
		Enabled:          true,
		Mode:             "server",
		Endpoint:         endpoint,
		Languages:        []string{"en", "de"},
		StartupTimeoutMS: 1000,
		RequestTimeoutMS: 1000,
	}
	return NewServer(cfg, logger)
}

func TestServerCheck(t *testing.T) {
	var gotLanguage string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/languages":
			w.Write([]byte("[]"))
		case "/v2/check":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			gotLanguage = r.Form.Get("language")
			json.NewEncoder(w).Encode(map[string]any{
				"matches": []map[string]any{
					{
						"offset":  5,
						"length":  3,
						"message": "subject-verb agreement",
						"replacements": []map[string]string{
							{"value": "is"},
							{"value": "was"},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	srv := newTestServer(t, ts.URL)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	res, err := srv.Check(context.Background(), "this are a test", "en")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Corrected != "this is a test" {
		t.Fatalf("corrected = %q", res.Corrected)
	}
	if len(res.Issues) != 1 || res.Issues[0].Replacement != "is" {
		t.Fatalf("unexpected issues: %+v", res.Issues)
	}
	if gotLanguage != "en-US" {
		t.Fatalf("expected locale en-US sent to engine, got %q", gotLanguage)
	}
}

func TestServerCheckUnreachable(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1")
	if _, err := srv.Check(context.Background(), "text", "en"); err == nil {
		t.Fatal("expected error from unreachable engine")
	}
}

func TestServerStartTimesOutWhenUnreachable(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:1")
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected startup timeout error")
	}
}

func TestLocaleFor(t *testing.T) {
	if localeFor("en") != "en-US" || localeFor("de") != "de-DE" || localeFor("fr") != "fr" {
		t.Fatal("unexpected locale mapping")
	}
}
