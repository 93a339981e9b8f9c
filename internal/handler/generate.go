package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/sopsmith/api/internal/model"
	"github.com/sopsmith/api/internal/service"
	"github.com/sopsmith/api/internal/source"
	"github.com/sopsmith/api/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerateService
	provider  *source.Provider
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerateService, provider *source.Provider, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		provider:  provider,
		validator: v,
	}
}

// Start handles POST /api/sop/start
func (h *GenerateHandler) Start(c *fiber.Ctx) error {
	var req model.GenerateStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.SourceID != "" && req.VideoURL != "" {
		return response.ValidationError(c, "Provide either sourceId or videoUrl, not both", nil)
	}

	var src *model.VideoSource
	var err error
	if req.VideoURL != "" {
		src, err = h.provider.AcquireRemote(req.VideoURL, req.Title)
		if err != nil {
			if errors.Is(err, source.ErrUnsupportedSource) {
				return response.ValidationError(c, "Unsupported video host", map[string]interface{}{
					"videoUrl": req.VideoURL,
				})
			}
			return response.ValidationError(c, "Invalid video URL", nil)
		}
	} else {
		src, err = h.provider.Take(req.SourceID)
		if err != nil {
			return response.NotFound(c, "Source not found")
		}
	}

	result, err := h.service.StartGenerate(c.Context(), src, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/sop/status/:runId
func (h *GenerateHandler) Status(c *fiber.Ctx) error {
	runID := c.Params("runId")
	if runID == "" {
		return response.ValidationError(c, "Run ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), runID)
	if err != nil {
		if err.Error() == "run not found" {
			return response.NotFound(c, "Run not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/sop/result/:runId
func (h *GenerateHandler) Result(c *fiber.Ctx) error {
	runID := c.Params("runId")
	if runID == "" {
		return response.ValidationError(c, "Run ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), runID)
	if err != nil {
		if err.Error() == "run not found" {
			return response.NotFound(c, "Run not found")
		}
		if err.Error() == "run not completed" {
			return response.ValidationError(c, "Run not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/sop/cancel/:runId
func (h *GenerateHandler) Cancel(c *fiber.Ctx) error {
	runID := c.Params("runId")
	if runID == "" {
		return response.ValidationError(c, "Run ID is required", nil)
	}

	result, err := h.service.CancelRun(c.Context(), runID)
	if err != nil {
		if err.Error() == "run not found" {
			return response.NotFound(c, "Run not found")
		}
		if err.Error() == "run already completed" {
			return response.ValidationError(c, "Run already completed", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
