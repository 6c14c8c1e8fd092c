// Package pipeline chains the speech engines for one upload: normalize,
// transcribe, plan, optionally correct, optionally synthesize. Stages run
// strictly in order; each consumes the full output of its predecessor. Runs
// are independent, so concurrent requests only share the engine handles.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/talkback-labs/talkback/internal/audio"
	"github.com/talkback-labs/talkback/internal/grammar"
	"github.com/talkback-labs/talkback/internal/policy"
	"github.com/talkback-labs/talkback/internal/stt"
	"github.com/talkback-labs/talkback/internal/tts"
)

// Engines bundles the external collaborators one run invokes.
// Checker may be nil when grammar correction is disabled.
type Engines struct {
	Normalizer audio.Normalizer
	Recognizer stt.Recognizer
	Checker    grammar.Checker
	Synth      tts.Synthesizer
}

type Orchestrator struct {
	engines     Engines
	voices      map[string]string
	defaultLang string
	logger      *slog.Logger
	tracer      trace.Tracer
	runCounter  metric.Int64Counter
	runDuration metric.Float64Histogram
	observers   []Observer
	clock       func() time.Time
}

func New(engines Engines, voices map[string]string, defaultLang string, logger *slog.Logger, observers ...Observer) *Orchestrator {
	o := &Orchestrator{
		engines:     engines,
		voices:      voices,
		defaultLang: defaultLang,
		logger:      logger.With(slog.String("component", "pipeline")),
		tracer:      otel.Tracer("talkback/pipeline"),
		observers:   observers,
		clock:       time.Now,
	}
	meter := otel.Meter("talkback/pipeline")
	var err error
	o.runCounter, err = meter.Int64Counter("talkback.pipeline.runs",
		metric.WithDescription("Completed pipeline runs by outcome"))
	if err != nil {
		o.logger.Warn("failed to create run counter", slogError(err))
	}
	o.runDuration, err = meter.Float64Histogram("talkback.pipeline.duration_ms",
		metric.WithDescription("End-to-end pipeline run duration"),
		metric.WithUnit("ms"))
	if err != nil {
		o.logger.Warn("failed to create duration histogram", slogError(err))
	}
	return o
}

// Run executes the full pipeline for one request and always returns a
// well-formed Outcome; it never panics on engine failure and never leaves
// temporary audio artifacts behind.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	runID := uuid.NewString()
	started := o.clock()
	stageMS := make(map[string]int64)
	log := o.logger.With(slog.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	outcome := o.run(ctx, req, log, stageMS)

	duration := o.clock().Sub(started)
	span.SetAttributes(
		attribute.String("pipeline.outcome", string(outcome.Kind)),
		attribute.String("pipeline.lang", outcome.Lang),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome.Kind)),
		))
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()))
	}

	rec := RunRecord{
		RunID:     runID,
		Email:     req.Email,
		Lang:      outcome.Lang,
		Outcome:   outcome.Kind,
		Stage:     outcome.Stage,
		Corrected: outcome.Corrected,
		Duration:  duration,
		StageMS:   stageMS,
		StartedAt: started,
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	for _, obs := range o.observers {
		obs.PipelineCompleted(rec)
	}

	if outcome.Kind == KindFailed {
		log.Warn("pipeline run failed",
			slog.String("stage", outcome.Stage),
			slog.Duration("duration", duration),
			slogError(outcome.Err))
	} else {
		log.Info("pipeline run complete",
			slog.String("outcome", string(outcome.Kind)),
			slog.String("lang", outcome.Lang),
			slog.Duration("duration", duration))
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, req Request, log *slog.Logger, stageMS map[string]int64) Outcome {
	if req.Email == "" {
		return failed(StageValidate, fmt.Errorf("%w: missing email", ErrValidation))
	}
	if len(req.Audio) == 0 {
		return failed(StageValidate, fmt.Errorf("%w: missing audio", ErrValidation))
	}

	normalized, err := timed(ctx, o, StageNormalize, stageMS, func(ctx context.Context) (*audio.Normalized, error) {
		return o.engines.Normalizer.Normalize(ctx, req.Audio, req.MimeType)
	})
	if err != nil {
		return failed(StageNormalize, fmt.Errorf("%w: %v", ErrDecode, err))
	}
	defer func() {
		if err := normalized.Release(); err != nil {
			log.Warn("failed to release normalized audio", slogError(err))
		}
	}()

	transcript, err := timed(ctx, o, StageTranscribe, stageMS, func(ctx context.Context) (stt.Result, error) {
		return o.engines.Recognizer.Transcribe(ctx, normalized)
	})
	if err != nil {
		return failed(StageTranscribe, fmt.Errorf("%w: %v", ErrRecognition, err))
	}

	plan := policy.PlanFor(transcript.Lang, o.defaultLang)
	log.Info("language plan decided",
		slog.String("detected", transcript.Lang),
		slog.String("lang", plan.Lang),
		slog.Bool("correct", plan.Correct),
		slog.String("voice", string(plan.Voice)))

	text := transcript.Text
	corrected := false
	if plan.Correct && o.engines.Checker != nil {
		result, err := timed(ctx, o, StageCorrect, stageMS, func(ctx context.Context) (grammar.Result, error) {
			return o.engines.Checker.Check(ctx, text, plan.Lang)
		})
		if err != nil {
			// Correction is an enhancement: an unreachable or broken grammar
			// engine must not fail the request. Continue uncorrected.
			log.Warn("grammar correction unavailable, continuing with raw transcript",
				slogError(fmt.Errorf("%w: %v", ErrCorrection, err)))
		} else {
			text = result.Corrected
			corrected = true
			if n := len(result.Issues); n > 0 {
				log.Info("grammar issues corrected", slog.Int("issues", n))
			}
		}
	}

	if !plan.Synthesize() {
		return Outcome{Kind: KindText, Text: text, Lang: plan.Lang, Corrected: corrected}
	}

	modelPath, ok := o.voices[plan.Lang]
	if !ok {
		return failed(StageSynthesize, fmt.Errorf("%w: no voice model configured for %q", ErrSynthesis, plan.Lang))
	}
	wav, err := timed(ctx, o, StageSynthesize, stageMS, func(ctx context.Context) ([]byte, error) {
		return o.engines.Synth.Synthesize(ctx, text, modelPath)
	})
	if err != nil {
		return failed(StageSynthesize, fmt.Errorf("%w: %v", ErrSynthesis, err))
	}

	return Outcome{Kind: KindAudio, WAV: wav, Text: text, Lang: plan.Lang, Corrected: corrected}
}

// timed wraps a stage call in a span and records its latency.
func timed[T any](ctx context.Context, o *Orchestrator, stage string, stageMS map[string]int64, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+stage)
	defer span.End()
	start := o.clock()
	out, err := fn(ctx)
	stageMS[stage] = o.clock().Sub(start).Milliseconds()
	return out, err
}

func failed(stage string, err error) Outcome {
	return Outcome{Kind: KindFailed, Stage: stage, Err: err}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
