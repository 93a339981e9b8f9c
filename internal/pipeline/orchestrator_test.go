package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sopsmith/api/internal/client"
	"github.com/sopsmith/api/internal/model"
)

type fakeExtractor struct {
	frames []model.ExtractedFrame
	err    error
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, src *model.VideoSource, cfg model.ExtractConfig) ([]model.ExtractedFrame, error) {
	return f.frames, f.err
}

type fakeTranscriber struct {
	transcript *model.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, src *model.VideoSource) (*model.Transcript, error) {
	return f.transcript, f.err
}

type fakeSynthesizer struct {
	doc     *model.SOPDocument
	err     error
	lastReq *client.SynthesizeRequest
}

func (f *fakeSynthesizer) SynthesizeSteps(ctx context.Context, req *client.SynthesizeRequest) (*model.SOPDocument, error) {
	f.lastReq = req
	return f.doc, f.err
}

type fakeMatcher struct {
	matches []model.FrameMatch
	err     error
	called  bool
}

func (f *fakeMatcher) MatchFrames(ctx context.Context, frames []model.ExtractedFrame, stepTexts []string) ([]model.FrameMatch, error) {
	f.called = true
	return f.matches, f.err
}

// recordingSink captures progress reports for assertions.
type recordingSink struct {
	mu       sync.Mutex
	progress []int
	messages []string
}

func (s *recordingSink) Report(ctx context.Context, progress int, stage model.PipelineStage, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, progress)
	s.messages = append(s.messages, message)
}

func (s *recordingSink) hasMessage(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func stepsNamed(n int) []model.SynthesizedStep {
	steps := make([]model.SynthesizedStep, n)
	for i := range steps {
		steps[i] = model.SynthesizedStep{Title: "step", Description: "do it", SourceFrameIndex: i}
	}
	return steps
}

func testPayload() *model.GenerateJobPayload {
	return &model.GenerateJobPayload{
		Source: model.VideoSource{ID: "src-1", Origin: model.OriginUpload, DeclaredTitle: "Replace the filter"},
		Title:  "Replace the filter",
	}
}

func TestRun_HappyPath(t *testing.T) {
	frames := makeFrames(4)
	synth := &fakeSynthesizer{doc: &model.SOPDocument{Title: "Replace the filter", Steps: stepsNamed(4)}}
	sink := &recordingSink{}

	orch := New(
		&fakeExtractor{frames: frames},
		&fakeTranscriber{transcript: &model.Transcript{Text: "first do this", Segments: []model.TranscriptSegment{{Text: "first do this"}}}},
		synth,
		&fakeMatcher{},
		sink,
		Config{},
	)

	result, err := orch.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.TranscriptUsed {
		t.Error("expected transcript to be used")
	}
	if len(result.Document.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(result.Document.Steps))
	}
	for i, s := range result.Document.Steps {
		if s.SourceFrameIndex != i {
			t.Errorf("step %d mapped to frame %d", i, s.SourceFrameIndex)
		}
	}
	if synth.lastReq.Transcript != "first do this" {
		t.Errorf("synthesizer got transcript %q", synth.lastReq.Transcript)
	}
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	sink := &recordingSink{}
	orch := New(
		&fakeExtractor{frames: makeFrames(2)},
		&fakeTranscriber{transcript: &model.Transcript{Text: "words"}},
		&fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(2)}},
		nil,
		sink,
		Config{},
	)

	if _, err := orch.Run(context.Background(), testPayload()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	prev := 0
	for _, p := range sink.progress {
		if p < prev {
			t.Fatalf("progress went backwards: %v", sink.progress)
		}
		prev = p
	}
	if prev != ProgressSynthesized {
		t.Errorf("expected final milestone %d, got %d", ProgressSynthesized, prev)
	}
}

func TestRun_TranscriptionFailureIsNotFatal(t *testing.T) {
	synth := &fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(3)}}
	sink := &recordingSink{}

	orch := New(
		&fakeExtractor{frames: makeFrames(3)},
		&fakeTranscriber{err: errors.New("service down")},
		synth,
		nil,
		sink,
		Config{},
	)

	result, err := orch.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.TranscriptUsed {
		t.Error("expected TranscriptUsed=false")
	}
	if synth.lastReq.Transcript != "" {
		t.Errorf("expected empty transcript, got %q", synth.lastReq.Transcript)
	}
	if !sink.hasMessage("Transcription unavailable") {
		t.Errorf("missing degradation log entry: %v", sink.messages)
	}
}

func TestRun_ExtractionFailureIsFatal(t *testing.T) {
	orch := New(
		&fakeExtractor{err: &client.StageError{Stage: client.StageNameExtractor, Kind: client.StageErrTimeout, Message: "deadline"}},
		&fakeTranscriber{transcript: &model.Transcript{}},
		&fakeSynthesizer{doc: &model.SOPDocument{}},
		nil,
		nil,
		Config{},
	)

	_, err := orch.Run(context.Background(), testPayload())
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.Stage != model.StageExtractingFrames {
		t.Errorf("expected failure at extraction, got %s", runErr.Stage)
	}
	var stageErr *client.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != client.StageErrTimeout {
		t.Errorf("expected wrapped timeout stage error, got %v", err)
	}
}

func TestRun_SynthesisFailureIsFatal(t *testing.T) {
	orch := New(
		&fakeExtractor{frames: makeFrames(2)},
		&fakeTranscriber{transcript: &model.Transcript{}},
		&fakeSynthesizer{err: errors.New("bad response")},
		nil,
		nil,
		Config{},
	)

	_, err := orch.Run(context.Background(), testPayload())
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.Stage != model.StageSynthesizing {
		t.Errorf("expected failure at synthesis, got %s", runErr.Stage)
	}
}

func TestRun_FewerStepsDegradeToClampedPositional(t *testing.T) {
	frames := makeFrames(5)
	sink := &recordingSink{}
	matcher := &fakeMatcher{err: errors.New("matcher down")}

	orch := New(
		&fakeExtractor{frames: frames},
		&fakeTranscriber{transcript: &model.Transcript{}},
		&fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(3)}},
		matcher,
		sink,
		Config{},
	)

	result, err := orch.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !matcher.called {
		t.Error("expected matcher to be consulted on count mismatch")
	}
	for i, s := range result.Document.Steps {
		if s.SourceFrameIndex != i {
			t.Errorf("step %d mapped to frame %d", i, s.SourceFrameIndex)
		}
	}
	if !sink.hasMessage("degraded to positional") {
		t.Errorf("missing degradation log entry: %v", sink.messages)
	}
}

func TestRun_MatcherRemapsOnMismatch(t *testing.T) {
	frames := makeFrames(5)
	matcher := &fakeMatcher{matches: []model.FrameMatch{
		{StepIndex: 0, FrameIndex: 1, Confidence: 0.9},
		{StepIndex: 1, FrameIndex: 4, Confidence: 0.8},
	}}

	orch := New(
		&fakeExtractor{frames: frames},
		&fakeTranscriber{transcript: &model.Transcript{}},
		&fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(2)}},
		matcher,
		&recordingSink{},
		Config{},
	)

	result, err := orch.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Document.Steps[0].SourceFrameIndex != 1 || result.Document.Steps[1].SourceFrameIndex != 4 {
		t.Errorf("matcher remap not applied: %+v", result.Document.Steps)
	}
}

func TestRun_ExcessStepsAreTruncated(t *testing.T) {
	sink := &recordingSink{}
	orch := New(
		&fakeExtractor{frames: makeFrames(3)},
		&fakeTranscriber{transcript: &model.Transcript{}},
		&fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(5)}},
		nil,
		sink,
		Config{},
	)

	result, err := orch.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Document.Steps) != 3 {
		t.Fatalf("expected truncation to 3 steps, got %d", len(result.Document.Steps))
	}
	if !sink.hasMessage("truncated") {
		t.Errorf("missing truncation log entry: %v", sink.messages)
	}
}

func TestRun_CanceledAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	extractor := &fakeExtractor{frames: makeFrames(2)}
	transcriber := &fakeTranscriber{transcript: &model.Transcript{}}
	synth := &fakeSynthesizer{doc: &model.SOPDocument{Steps: stepsNamed(2)}}

	// Cancel while the fork is still resolving; the run must stop at the
	// next boundary without reaching synthesis.
	sink := &cancelOnReportSink{cancel: cancel, at: ProgressTranscribed}
	orch := New(extractor, transcriber, synth, nil, sink, Config{})

	_, err := orch.Run(ctx, testPayload())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if synth.lastReq != nil {
		t.Error("synthesis ran after cancellation")
	}
}

type cancelOnReportSink struct {
	cancel context.CancelFunc
	at     int
}

func (s *cancelOnReportSink) Report(ctx context.Context, progress int, stage model.PipelineStage, message string) {
	if progress == s.at {
		s.cancel()
	}
}

func TestTruncateContext(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := truncateContext(long, 10); len(got) != 10 {
		t.Errorf("expected 10 chars, got %d", len(got))
	}
	if got := truncateContext("short", 10); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
	if got := truncateContext(long, 0); len(got) != 100 {
		t.Errorf("zero limit must disable truncation, got %d chars", len(got))
	}
}
