package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sopsmith/api/internal/client"
	"github.com/sopsmith/api/internal/model"
)

// FrameExtractor is the essential stage that turns a video source into an
// ordered keyframe sequence.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, src *model.VideoSource, cfg model.ExtractConfig) ([]model.ExtractedFrame, error)
}

// Transcriber is the optional stage producing the spoken-word transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, src *model.VideoSource) (*model.Transcript, error)
}

// Synthesizer is the essential stage turning frames plus context into steps.
type Synthesizer interface {
	SynthesizeSteps(ctx context.Context, req *client.SynthesizeRequest) (*model.SOPDocument, error)
}

// FrameMatcher is the secondary alignment path, consulted only when the
// one-step-per-frame contract cannot be trusted.
type FrameMatcher interface {
	MatchFrames(ctx context.Context, frames []model.ExtractedFrame, stepTexts []string) ([]model.FrameMatch, error)
}

// ProgressSink receives milestone updates and log messages for the run
// record. Implementations must treat progress as monotonic: a value lower
// than the current one only contributes its message.
type ProgressSink interface {
	Report(ctx context.Context, progress int, stage model.PipelineStage, message string)
}

// RunError marks a run-fatal failure with the stage it originated from.
type RunError struct {
	Stage model.PipelineStage
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Progress milestones. Monotonic; assembly completion (100) is reported by
// the caller once artifacts are persisted.
const (
	ProgressStarted     = 5
	ProgressExtracted   = 40
	ProgressTranscribed = 50
	ProgressSynthesized = 90
	ProgressUploading   = 95
	ProgressDone        = 100
)

// Timeouts are the per-invocation deadlines handed to each stage client.
type Timeouts struct {
	Extract    time.Duration
	Transcribe time.Duration
	Synthesize time.Duration
	Match      time.Duration
}

// Config carries the orchestrator's stage parameters.
type Config struct {
	Extract          model.ExtractConfig
	ContextCharLimit int
	Timeouts         Timeouts
}

// Result is the assembled outcome of a successful run, before persistence.
type Result struct {
	Document       *model.SOPDocument
	Frames         []model.ExtractedFrame
	TranscriptUsed bool
}

// Orchestrator sequences the pipeline stages for one run: frame extraction
// and transcription fork and join, synthesis consumes both, alignment fixes
// the step-to-frame mapping. Frame extraction and step synthesis are
// essential; transcription and alignment degrade without failing the run.
// Stages are never retried here: a failure is classified once and acted on.
type Orchestrator struct {
	extractor   FrameExtractor
	transcriber Transcriber
	synthesizer Synthesizer
	matcher     FrameMatcher // optional
	sink        ProgressSink
	cfg         Config
}

// New creates an orchestrator. matcher may be nil, in which case untrusted
// alignment always degrades to the clamped positional mapping.
func New(extractor FrameExtractor, transcriber Transcriber, synthesizer Synthesizer, matcher FrameMatcher, sink ProgressSink, cfg Config) *Orchestrator {
	return &Orchestrator{
		extractor:   extractor,
		transcriber: transcriber,
		synthesizer: synthesizer,
		matcher:     matcher,
		sink:        sink,
		cfg:         cfg,
	}
}

// Run executes the pipeline for one video source. Cancellation is honored at
// stage boundaries; an in-flight stage call runs to its own deadline and its
// result is discarded.
func (o *Orchestrator) Run(ctx context.Context, payload *model.GenerateJobPayload) (*Result, error) {
	src := &payload.Source

	o.report(ctx, ProgressStarted, model.StageExtractingFrames, "Starting pipeline...")

	// Fork: extraction and transcription have no data dependency on each
	// other. Both must resolve (success or soft-failure) before synthesis.
	type extractOut struct {
		frames []model.ExtractedFrame
		err    error
	}
	type transcribeOut struct {
		transcript *model.Transcript
		err        error
	}

	extCh := make(chan extractOut, 1)
	trCh := make(chan transcribeOut, 1)

	go func() {
		stageCtx, cancel := o.stageContext(ctx, o.cfg.Timeouts.Extract)
		defer cancel()
		frames, err := o.extractor.ExtractFrames(stageCtx, src, o.cfg.Extract)
		extCh <- extractOut{frames: frames, err: err}
	}()

	go func() {
		stageCtx, cancel := o.stageContext(ctx, o.cfg.Timeouts.Transcribe)
		defer cancel()
		transcript, err := o.transcriber.Transcribe(stageCtx, src)
		trCh <- transcribeOut{transcript: transcript, err: err}
	}()

	ext := <-extCh
	tr := <-trCh

	if ext.err != nil {
		return nil, &RunError{Stage: model.StageExtractingFrames, Cause: ext.err}
	}
	frames := ext.frames
	o.report(ctx, ProgressExtracted, model.StageExtractingFrames, fmt.Sprintf("Extracted %d frames", len(frames)))

	// Transcription is best-effort: any failure degrades to an empty
	// transcript and is logged, never surfaced as run failure.
	transcriptText := ""
	if tr.err != nil {
		o.report(ctx, ProgressTranscribed, model.StageTranscribing, "Transcription unavailable, continuing without transcript")
	} else {
		transcriptText = tr.transcript.Text
		o.report(ctx, ProgressTranscribed, model.StageTranscribing, fmt.Sprintf("Transcribed %d segments", len(tr.transcript.Segments)))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title := payload.Title
	if title == "" {
		title = src.DeclaredTitle
	}

	synthCtx, cancelSynth := o.stageContext(ctx, o.cfg.Timeouts.Synthesize)
	doc, err := o.synthesizer.SynthesizeSteps(synthCtx, &client.SynthesizeRequest{
		Title:        title,
		Instructions: payload.Instructions,
		Transcript:   truncateContext(transcriptText, o.cfg.ContextCharLimit),
		Frames:       frames,
	})
	cancelSynth()
	if err != nil {
		return nil, &RunError{Stage: model.StageSynthesizing, Cause: err}
	}
	o.report(ctx, ProgressSynthesized, model.StageSynthesizing, fmt.Sprintf("Synthesized %d steps", len(doc.Steps)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.align(ctx, doc, frames)

	return &Result{
		Document:       doc,
		Frames:         frames,
		TranscriptUsed: transcriptText != "",
	}, nil
}

// align fixes the step-to-frame mapping. Counts matching means the 1:1
// synthesis contract held and positional identity applies. Any mismatch makes
// the contract untrusted: the matcher is consulted when available, and every
// failure along the way degrades to the clamped positional mapping.
func (o *Orchestrator) align(ctx context.Context, doc *model.SOPDocument, frames []model.ExtractedFrame) {
	o.report(ctx, ProgressSynthesized, model.StageAligning, "Aligning steps to frames")

	if len(doc.Steps) > len(frames) {
		// The synthesizer must never return more steps than frames; keep
		// the document usable by dropping the excess.
		doc.Steps = doc.Steps[:len(frames)]
		o.report(ctx, ProgressSynthesized, model.StageAligning, fmt.Sprintf("Synthesizer exceeded frame count, truncated to %d steps", len(frames)))
	}

	if len(doc.Steps) == len(frames) {
		if err := AlignPositional(doc.Steps, frames); err == nil {
			return
		}
	}

	if o.matcher != nil {
		stepTexts := make([]string, len(doc.Steps))
		for i, s := range doc.Steps {
			stepTexts[i] = s.Title + ": " + s.Description
		}

		matchCtx, cancel := o.stageContext(ctx, o.cfg.Timeouts.Match)
		matches, err := o.matcher.MatchFrames(matchCtx, frames, stepTexts)
		cancel()
		if err == nil {
			if err := AlignWithMatches(doc.Steps, frames, matches); err == nil {
				o.report(ctx, ProgressSynthesized, model.StageAligning, "Re-matched steps to frames")
				return
			}
		}
	}

	// Clamped positional fallback: every step keeps a valid frame reference.
	_ = AlignPositional(doc.Steps, frames)
	o.report(ctx, ProgressSynthesized, model.StageAligning, "Alignment degraded to positional mapping")
}

func (o *Orchestrator) report(ctx context.Context, progress int, stage model.PipelineStage, message string) {
	if o.sink != nil {
		o.sink.Report(ctx, progress, stage, message)
	}
}

func (o *Orchestrator) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// truncateContext cuts transcript text to the synthesis context budget.
func truncateContext(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
