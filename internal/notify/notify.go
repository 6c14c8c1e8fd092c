// Package notify broadcasts run-completed events on the bus so downstream
// consumers (for instance a mailer keyed on the uploaded email) can react
// without coupling to the pipeline.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/talkback-labs/talkback/internal/bus"
	"github.com/talkback-labs/talkback/internal/pipeline"
)

// RunCompleted is the event published after every pipeline run.
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	Email      string    `json:"email"`
	Lang       string    `json:"lang,omitempty"`
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher implements pipeline.Observer over a NATS subject.
type Publisher struct {
	bus     *bus.Client
	subject string
	logger  *slog.Logger
}

func NewPublisher(busClient *bus.Client, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:     busClient,
		subject: subject,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// PipelineCompleted publishes the run summary. Publish failures are logged
// and dropped; notification is best-effort and never affects the response.
func (p *Publisher) PipelineCompleted(rec pipeline.RunRecord) {
	event := RunCompleted{
		RunID:      rec.RunID,
		Email:      rec.Email,
		Lang:       rec.Lang,
		Outcome:    string(rec.Outcome),
		Stage:      rec.Stage,
		DurationMS: rec.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal run event", slog.String("error", err.Error()))
		return
	}
	if err := p.bus.Conn().Publish(p.subject, data); err != nil {
		p.logger.Warn("failed to publish run event",
			slog.String("run_id", rec.RunID),
			slog.String("error", err.Error()))
	}
}
