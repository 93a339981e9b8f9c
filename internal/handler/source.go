package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sopsmith/api/internal/model"
	"github.com/sopsmith/api/internal/source"
	"github.com/sopsmith/api/pkg/response"
)

type SourceHandler struct {
	provider *source.Provider
	sessions *source.SessionRegistry
	maxBytes int64
}

func NewSourceHandler(provider *source.Provider, sessions *source.SessionRegistry, maxBytes int64) *SourceHandler {
	return &SourceHandler{
		provider: provider,
		sessions: sessions,
		maxBytes: maxBytes,
	}
}

// Upload handles POST /api/source/upload
func (h *SourceHandler) Upload(c *fiber.Ctx) error {
	title := c.FormValue("title")

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > h.maxBytes {
		return response.ValidationError(c, "File size exceeds upload limit", map[string]interface{}{
			"maxSize":  h.maxBytes,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"video/mp4":        true,
		"video/quicktime":  true,
		"video/webm":       true,
		"video/x-matroska": true,
		"video/mpeg":       true,
	}
	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: MP4, MOV, WebM, MKV, MPEG", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	src, err := h.provider.AcquireUpload(c.Context(), title, f, file.Size)
	if err != nil {
		if errors.Is(err, source.ErrInvalidInput) {
			return response.ValidationError(c, "Uploaded file is empty", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, sourceResponse(src))
}

// CaptureStart handles POST /api/capture/start
func (h *SourceHandler) CaptureStart(c *fiber.Ctx) error {
	sess := h.sessions.Start()
	return response.Created(c, &model.CaptureStartResponse{
		SessionID: sess.ID,
		MaxBytes:  h.maxBytes,
		CreatedAt: sess.CreatedAt,
	})
}

// CaptureChunk handles POST /api/capture/:sessionId/chunk
func (h *SourceHandler) CaptureChunk(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return response.NotFound(c, "Capture session not found")
	}

	chunk := c.Body()
	if len(chunk) == 0 {
		return response.ValidationError(c, "Chunk body is empty", nil)
	}

	if err := sess.Append(chunk); err != nil {
		if errors.Is(err, source.ErrRecordingTooLong) {
			return response.ValidationError(c, "Recording exceeds size limit", map[string]interface{}{
				"maxBytes": h.maxBytes,
			})
		}
		if errors.Is(err, source.ErrSessionClosed) {
			return response.ValidationError(c, "Capture session already stopped", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	count, buffered := sess.Stats()
	return response.OK(c, &model.CaptureChunkResponse{
		SessionID:     sessionID,
		ChunkCount:    count,
		BufferedBytes: buffered,
	})
}

// CaptureStop handles POST /api/capture/:sessionId/stop
func (h *SourceHandler) CaptureStop(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return response.NotFound(c, "Capture session not found")
	}

	title := c.Query("title")
	src, err := h.provider.AcquireRecording(c.Context(), sess, title)
	if err != nil {
		if errors.Is(err, source.ErrEmptyRecording) {
			h.sessions.Remove(sessionID)
			return response.ValidationError(c, "Recording captured no media", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	h.sessions.Remove(sessionID)

	return response.Created(c, sourceResponse(src))
}

func sourceResponse(src *model.VideoSource) *model.SourceResponse {
	return &model.SourceResponse{
		SourceID:  src.ID,
		Origin:    src.Origin,
		URL:       src.StorageURL,
		ByteSize:  src.ByteSize,
		CreatedAt: time.Now(),
	}
}
