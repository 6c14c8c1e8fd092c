package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/talkback-labs/talkback/internal/config"
)

// Server runs a LanguageTool-style HTTP grammar server as a locally spawned
// child process and talks to it over JSON HTTP. The process is started once
// at service startup and shared by all pipeline runs; a run must tolerate it
// being unreachable (the orchestrator falls back to the uncorrected text).
type Server struct {
	cfg    config.GrammarConfig
	logger *slog.Logger
	client *http.Client
	proc   *exec.Cmd
}

func NewServer(cfg config.GrammarConfig, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "grammar-server")),
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond},
	}
}

// Start spawns the configured server command, if any, and waits until the
// endpoint answers. With no command configured the endpoint is assumed to be
// managed externally and only probed.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Command != "" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(s.cfg.Command)
		if err != nil {
			return fmt.Errorf("parse grammar command: %w", err)
		}
		if len(args) == 0 {
			return fmt.Errorf("grammar command is empty")
		}
		proc := exec.Command(args[0], args[1:]...)
		if err := proc.Start(); err != nil {
			return fmt.Errorf("start grammar server: %w", err)
		}
		s.proc = proc
		s.logger.Info("grammar server spawned", slog.Int("pid", proc.Process.Pid))
	}

	deadline := time.Now().Add(time.Duration(s.cfg.StartupTimeoutMS) * time.Millisecond)
	for {
		if s.Healthy(ctx) {
			s.logger.Info("grammar server ready", slog.String("endpoint", s.cfg.Endpoint))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("grammar server not reachable at %s within %dms", s.cfg.Endpoint, s.cfg.StartupTimeoutMS)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Healthy probes the server's language listing endpoint.
func (s *Server) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"/v2/languages", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}

// Stop terminates the spawned process, if this Server owns one.
func (s *Server) Stop() {
	if s.proc == nil || s.proc.Process == nil {
		return
	}
	s.logger.Info("stopping grammar server", slog.Int("pid", s.proc.Process.Pid))
	_ = s.proc.Process.Kill()
	_ = s.proc.Wait()
	s.proc = nil
}

type checkResponse struct {
	Matches []struct {
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Message      string `json:"message"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
	} `json:"matches"`
}

// Check submits text to the server's check endpoint and applies the returned
// matches. Issues keep the engine's order; offsets refer to the input text.
func (s *Server) Check(ctx context.Context, text, lang string) (Result, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", localeFor(lang))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("grammar server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("grammar server returned status %s", resp.Status)
	}

	var payload checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode grammar response: %w", err)
	}

	issues := make([]Issue, 0, len(payload.Matches))
	for _, m := range payload.Matches {
		issue := Issue{Offset: m.Offset, Length: m.Length, Message: m.Message}
		if len(m.Replacements) > 0 {
			issue.Replacement = m.Replacements[0].Value
		}
		issues = append(issues, issue)
	}
	return Result{Corrected: applyIssues(text, issues), Issues: issues}, nil
}

// localeFor widens a bare language code to the locale the engine expects.
func localeFor(lang string) string {
	switch strings.ToLower(lang) {
	case "en":
		return "en-US"
	case "de":
		return "de-DE"
	default:
		return lang
	}
}
