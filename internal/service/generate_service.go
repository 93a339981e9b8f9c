package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sopsmith/api/internal/model"
	"github.com/sopsmith/api/internal/pipeline"
)

const (
	TaskTypeGenerate = "sop:generate"

	runTTL = 24 * time.Hour
)

// GenerateService owns the pipeline run lifecycle: it creates run records,
// queues the generation task, and is the only writer of run state. Everyone
// else reads snapshots.
type GenerateService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewGenerateService(redisClient *redis.Client, asynqClient *asynq.Client) *GenerateService {
	return &GenerateService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartGenerate creates a run record for the acquired source and queues the
// generation task. One request maps to exactly one run.
func (s *GenerateService) StartGenerate(ctx context.Context, src *model.VideoSource, req *model.GenerateStartRequest) (*model.GenerateStartResponse, error) {
	runID := uuid.New().String()
	now := time.Now()

	run := &model.Run{
		ID:        runID,
		Status:    model.RunStatusQueued,
		Stage:     model.StageInitialized,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.GenerateJobPayload{
		Source:       *src,
		Title:        req.Title,
		Instructions: req.Instructions,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	run.Payload = payloadBytes

	if err := s.saveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	task, err := newGenerateTask(runID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Stage failures are classified once inside the run, never retried by
	// re-running the whole task.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("generate"),
		asynq.MaxRetry(0),
		asynq.Retention(runTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateStartResponse{
		RunID:             runID,
		Status:            model.RunStatusQueued,
		EstimatedDuration: 120, // seconds — dominated by the synthesis stage
		CreatedAt:         now,
	}, nil
}

// GetStatus returns the current snapshot of a run
func (s *GenerateService) GetStatus(ctx context.Context, runID string) (*model.RunStatusResponse, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &model.RunStatusResponse{
		RunID:       run.ID,
		Status:      run.Status,
		Stage:       run.Stage,
		Progress:    run.Progress,
		Log:         run.Log,
		Error:       run.Error,
		FailedStage: run.FailedStage,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}, nil
}

// GetResult returns the SOP document of a completed run
func (s *GenerateService) GetResult(ctx context.Context, runID string) (*model.GenerateResultResponse, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != model.RunStatusCompleted {
		return nil, fmt.Errorf("run not completed")
	}

	var result model.GenerateResultResponse
	if err := json.Unmarshal(run.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// CancelRun requests cancellation. The worker honors it at the next stage
// boundary; an in-flight stage call completes and its result is discarded.
func (s *GenerateService) CancelRun(ctx context.Context, runID string) (*model.RunCancelResponse, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status == model.RunStatusCompleted || run.Status == model.RunStatusFailed {
		return nil, fmt.Errorf("run already completed")
	}

	run.Status = model.RunStatusCanceled
	now := time.Now()
	run.CompletedAt = &now

	if err := s.saveRun(ctx, run); err != nil {
		return nil, err
	}

	return &model.RunCancelResponse{
		Success: true,
		RunID:   runID,
		Status:  model.RunStatusCanceled,
	}, nil
}

// IsCanceled reports whether cancellation has been requested for a run.
func (s *GenerateService) IsCanceled(ctx context.Context, runID string) bool {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return false
	}
	return run.Status == model.RunStatusCanceled
}

// UpdateRunProgress advances a run's progress and pushes a log entry (called
// by worker). Progress is monotonic: a lower value keeps the recorded
// percentage and only contributes its message to the log ring.
func (s *GenerateService) UpdateRunProgress(ctx context.Context, runID string, progress int, stage model.PipelineStage, message string) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}

	if progress > run.Progress {
		run.Progress = progress
	}
	if stage != "" {
		run.Stage = stage
	}
	if message != "" {
		run.Log = pipeline.PushRing(run.Log, message, model.LogCapacity)
	}

	if run.Status == model.RunStatusQueued {
		run.Status = model.RunStatusRunning
		now := time.Now()
		run.StartedAt = &now
	}

	return s.saveRun(ctx, run)
}

// CompleteRun marks a run as completed with its terminal artifact (called by worker)
func (s *GenerateService) CompleteRun(ctx context.Context, runID string, result interface{}) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	run.Status = model.RunStatusCompleted
	run.Stage = model.StageCompleted
	run.Progress = 100
	run.Result = resultBytes
	now := time.Now()
	run.CompletedAt = &now

	return s.saveRun(ctx, run)
}

// FailRun marks a run as failed, preserving the originating stage and cause
// (called by worker). A failed run keeps no partial artifacts.
func (s *GenerateService) FailRun(ctx context.Context, runID string, stage model.PipelineStage, errMsg string) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}

	run.Status = model.RunStatusFailed
	run.FailedStage = stage
	run.Error = &errMsg
	run.Result = nil
	now := time.Now()
	run.CompletedAt = &now

	return s.saveRun(ctx, run)
}

// Helper methods

func (s *GenerateService) saveRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("run:%s", run.ID), data, runTTL).Err()
}

func (s *GenerateService) getRun(ctx context.Context, runID string) (*model.Run, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("run:%s", runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run not found")
		}
		return nil, err
	}

	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

func newGenerateTask(runID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"runId":   runID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerate, data), nil
}
