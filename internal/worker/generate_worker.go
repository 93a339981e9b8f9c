package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sopsmith/api/internal/client"
	"github.com/sopsmith/api/internal/config"
	"github.com/sopsmith/api/internal/model"
	"github.com/sopsmith/api/internal/pipeline"
	"github.com/sopsmith/api/internal/service"
	"github.com/sopsmith/api/internal/websocket"
)

// GenerateWorker processes SOP generation runs. It wires the real stage
// clients into the orchestrator, relays progress to the run record and the
// WebSocket hub, and persists the terminal artifacts.
type GenerateWorker struct {
	generateService *service.GenerateService
	extractor       *client.ExtractorClient
	transcriber     *client.TranscriberClient
	vision          *client.VisionClient
	storage         client.StorageClient
	hub             *websocket.Hub
	cfg             *config.Config
}

// NewGenerateWorker creates a new generation worker
func NewGenerateWorker(
	generateService *service.GenerateService,
	extractor *client.ExtractorClient,
	transcriber *client.TranscriberClient,
	vision *client.VisionClient,
	storage client.StorageClient,
	hub *websocket.Hub,
	cfg *config.Config,
) *GenerateWorker {
	return &GenerateWorker{
		generateService: generateService,
		extractor:       extractor,
		transcriber:     transcriber,
		vision:          vision,
		storage:         storage,
		hub:             hub,
		cfg:             cfg,
	}
}

// runSink adapts one run's progress stream onto the run record and the hub.
type runSink struct {
	worker *GenerateWorker
	runID  string
}

func (s *runSink) Report(ctx context.Context, progress int, stage model.PipelineStage, message string) {
	if err := s.worker.generateService.UpdateRunProgress(ctx, s.runID, progress, stage, message); err != nil {
		log.Printf("Failed to update run progress: %v", err)
	}
	s.worker.hub.BroadcastProgress(s.runID, progress, model.RunStatusRunning, stage, message)
}

// ProcessTask handles one generation run end to end.
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		RunID   string          `json:"runId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	runID := taskPayload.RunID
	log.Printf("Starting generation run: %s", runID)

	var payload model.GenerateJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failRun(ctx, runID, model.StageInitialized, "Invalid payload")
		return fmt.Errorf("failed to unmarshal generate payload: %v: %w", err, asynq.SkipRetry)
	}

	if w.generateService.IsCanceled(ctx, runID) {
		log.Printf("Run %s canceled before start", runID)
		return nil
	}

	// Without the extraction and vision services there is no pipeline to
	// run; walk the milestones with canned output for development.
	if !w.extractor.IsConfigured() || !w.vision.IsConfigured() {
		return w.processWithMock(ctx, runID, &payload)
	}

	return w.processRun(ctx, runID, &payload)
}

func (w *GenerateWorker) processRun(ctx context.Context, runID string, payload *model.GenerateJobPayload) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Poll for caller-side cancellation; the orchestrator checks at stage
	// boundaries, in-flight stage calls are allowed to complete.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if w.generateService.IsCanceled(runCtx, runID) {
					cancel()
					return
				}
			}
		}
	}()

	orch := pipeline.New(
		w.extractor,
		w.transcriber,
		w.vision,
		w.vision,
		&runSink{worker: w, runID: runID},
		pipeline.Config{
			Extract: model.ExtractConfig{
				SceneThreshold: w.cfg.Extractor.SceneThreshold,
				MaxFrames:      w.cfg.Extractor.MaxFrames,
				MinFrames:      w.cfg.Extractor.MinFrames,
			},
			ContextCharLimit: w.cfg.Vision.ContextCharLimit,
			Timeouts: pipeline.Timeouts{
				Extract:    time.Duration(w.cfg.Extractor.Timeout) * time.Second,
				Transcribe: time.Duration(w.cfg.Transcriber.Timeout) * time.Second,
				Synthesize: time.Duration(w.cfg.Vision.Timeout) * time.Second,
				Match:      time.Duration(w.cfg.Vision.MatchTimeout) * time.Second,
			},
		},
	)

	result, err := orch.Run(runCtx, payload)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			log.Printf("Run %s canceled", runID)
			return nil
		}
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			w.failRun(ctx, runID, runErr.Stage, runErr.Cause.Error())
		} else {
			w.failRun(ctx, runID, model.StageInitialized, err.Error())
		}
		return fmt.Errorf("run %s failed: %v: %w", runID, err, asynq.SkipRetry)
	}

	w.updateProgress(ctx, runID, pipeline.ProgressUploading, model.StageAssembling, "Persisting document and frames...")

	response, err := w.assembleResult(ctx, runID, result)
	if err != nil {
		w.failRun(ctx, runID, model.StageAssembling, err.Error())
		return fmt.Errorf("run %s failed: %v: %w", runID, err, asynq.SkipRetry)
	}

	if err := w.generateService.CompleteRun(ctx, runID, response); err != nil {
		w.failRun(ctx, runID, model.StageAssembling, "Failed to save result")
		return fmt.Errorf("run %s failed to save: %v: %w", runID, err, asynq.SkipRetry)
	}

	w.hub.BroadcastComplete(runID, response)
	log.Printf("Generation run %s completed", runID)
	return nil
}

// assembleResult uploads per-step frames and the document JSON, then builds
// the caller-facing result.
func (w *GenerateWorker) assembleResult(ctx context.Context, runID string, result *pipeline.Result) (*model.GenerateResultResponse, error) {
	doc := result.Document
	frames := result.Frames

	frameURLs := make(map[int]string)
	for _, step := range doc.Steps {
		idx := step.SourceFrameIndex
		if _, done := frameURLs[idx]; done {
			continue
		}
		key := fmt.Sprintf("sops/%s/frames/%d.jpg", runID, idx)
		if w.storage != nil {
			url, err := w.storage.Upload(ctx, key, bytes.NewReader(frames[idx].ImagePayload), "image/jpeg")
			if err != nil {
				return nil, fmt.Errorf("failed to upload frame %d: %w", idx, err)
			}
			frameURLs[idx] = url
		} else {
			frameURLs[idx] = "https://cdn.sopsmith.app/" + key
		}
	}

	response := &model.GenerateResultResponse{
		RunID:             runID,
		Title:             doc.Title,
		Description:       doc.Description,
		PPERequirements:   doc.PPERequirements,
		MaterialsRequired: doc.MaterialsRequired,
		TranscriptUsed:    result.TranscriptUsed,
		CreatedAt:         time.Now(),
	}

	for _, step := range doc.Steps {
		response.Steps = append(response.Steps, model.StepResult{
			Title:            step.Title,
			Description:      step.Description,
			SafetyWarnings:   step.SafetyWarnings,
			ToolsRequired:    step.ToolsRequired,
			TimestampSeconds: frames[step.SourceFrameIndex].TimestampSeconds,
			FrameURL:         frameURLs[step.SourceFrameIndex],
		})
	}

	docKey := fmt.Sprintf("sops/%s/document.json", runID)
	if w.storage != nil {
		docURL, err := w.storage.UploadJSON(ctx, docKey, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to upload document: %w", err)
		}
		response.DocumentURL = docURL
	} else {
		response.DocumentURL = "https://cdn.sopsmith.app/" + docKey
	}

	return response, nil
}

// processWithMock walks the milestone sequence with canned output for
// development when the stage services are unconfigured.
func (w *GenerateWorker) processWithMock(ctx context.Context, runID string, payload *model.GenerateJobPayload) error {
	steps := []struct {
		progress int
		stage    model.PipelineStage
		message  string
		duration time.Duration
	}{
		{pipeline.ProgressStarted, model.StageExtractingFrames, "Starting pipeline...", 1 * time.Second},
		{pipeline.ProgressExtracted, model.StageExtractingFrames, "Extracted 4 frames", 2 * time.Second},
		{pipeline.ProgressTranscribed, model.StageTranscribing, "Transcribed 6 segments", 2 * time.Second},
		{pipeline.ProgressSynthesized, model.StageSynthesizing, "Synthesized 4 steps", 3 * time.Second},
		{pipeline.ProgressSynthesized, model.StageAligning, "Aligning steps to frames", 1 * time.Second},
		{pipeline.ProgressUploading, model.StageAssembling, "Persisting document and frames...", 1 * time.Second},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			log.Printf("Generation run %s canceled", runID)
			return ctx.Err()
		default:
		}
		if w.generateService.IsCanceled(ctx, runID) {
			log.Printf("Generation run %s canceled", runID)
			return nil
		}

		w.updateProgress(ctx, runID, step.progress, step.stage, step.message)
		time.Sleep(step.duration)
	}

	result := w.generateMockResult(runID, payload)

	if err := w.generateService.CompleteRun(ctx, runID, result); err != nil {
		w.failRun(ctx, runID, model.StageAssembling, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(runID, result)
	log.Printf("Generation run %s completed (mock)", runID)
	return nil
}

func (w *GenerateWorker) generateMockResult(runID string, payload *model.GenerateJobPayload) *model.GenerateResultResponse {
	title := payload.Title
	if title == "" {
		title = payload.Source.DeclaredTitle
	}
	if title == "" {
		title = "Untitled procedure"
	}

	mockSteps := []model.StepResult{
		{Title: "Prepare the workspace", Description: "Clear the bench and lay out the required tools.", TimestampSeconds: 2.0},
		{Title: "Set up the equipment", Description: "Position the main assembly and connect the fixtures.", TimestampSeconds: 34.5, ToolsRequired: []string{"screwdriver"}},
		{Title: "Perform the procedure", Description: "Work through the operation shown, keeping parts aligned.", TimestampSeconds: 78.0},
		{Title: "Verify and clean up", Description: "Inspect the result and return tools to storage.", TimestampSeconds: 142.25},
	}

	for i := range mockSteps {
		mockSteps[i].FrameURL = fmt.Sprintf("https://cdn.sopsmith.app/sops/%s/frames/%d.jpg", runID, i)
	}

	return &model.GenerateResultResponse{
		RunID:             runID,
		Title:             title,
		Description:       "Generated procedure (mock pipeline).",
		PPERequirements:   []string{"safety glasses"},
		MaterialsRequired: []string{"workbench"},
		Steps:             mockSteps,
		DocumentURL:       fmt.Sprintf("https://cdn.sopsmith.app/sops/%s/document.json", runID),
		CreatedAt:         time.Now(),
	}
}

func (w *GenerateWorker) updateProgress(ctx context.Context, runID string, progress int, stage model.PipelineStage, message string) {
	if err := w.generateService.UpdateRunProgress(ctx, runID, progress, stage, message); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(runID, progress, model.RunStatusRunning, stage, message)
}

func (w *GenerateWorker) failRun(ctx context.Context, runID string, stage model.PipelineStage, errMsg string) {
	if err := w.generateService.FailRun(ctx, runID, stage, errMsg); err != nil {
		log.Printf("Failed to mark run as failed: %v", err)
	}
	w.hub.BroadcastError(runID, "GENERATION_FAILED", errMsg)
}
