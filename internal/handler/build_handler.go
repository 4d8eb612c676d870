package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/service"
	"github.com/kursadbilgin/simplesla-notifier/internal/transport"
)

type CompletionService interface {
	Handle(ctx context.Context, source service.Source, completion domain.BuildCompletion) (service.Report, error)
}

type BuildHandler struct {
	service CompletionService
}

func NewBuildHandler(service CompletionService) (*BuildHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("completion service is required")
	}
	return &BuildHandler{service: service}, nil
}

func RegisterBuildRoutes(router fiber.Router, service CompletionService) error {
	h, err := NewBuildHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/builds/completed", h.BuildCompleted)

	return nil
}

type buildCompletedResponse struct {
	Status        string `json:"status"`
	State         string `json:"state"`
	SkipReason    string `json:"skipReason,omitempty"`
	StatusCode    int    `json:"statusCode,omitempty"`
	ErrorKind     string `json:"errorKind,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// BuildCompleted answers "ok" for every well-formed signal, whatever
// happened to the delivery.
func (h *BuildHandler) BuildCompleted(c *fiber.Ctx) error {
	var req domain.BuildCompletion
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.Handle(c.UserContext(), service.SourceHTTP, req)
	if err != nil {
		return toHTTPError(err)
	}

	resp := buildCompletedResponse{
		Status:        "ok",
		State:         report.State.String(),
		SkipReason:    report.SkipReason,
		StatusCode:    report.StatusCode,
		CorrelationID: transport.RequestCorrelationID(c),
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	if report.ErrorKind != "" {
		resp.ErrorKind = report.ErrorKind.String()
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
