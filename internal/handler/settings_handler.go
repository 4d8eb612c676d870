package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

type SettingsService interface {
	Current() domain.GlobalSettings
	Configure(ctx context.Context, settings domain.GlobalSettings) (domain.GlobalSettings, error)
}

type SettingsHandler struct {
	service SettingsService
}

func NewSettingsHandler(service SettingsService) (*SettingsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("settings service is required")
	}
	return &SettingsHandler{service: service}, nil
}

func RegisterSettingsRoutes(router fiber.Router, service SettingsService) error {
	h, err := NewSettingsHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/settings", h.GetSettings)
	v1.Put("/settings", h.UpdateSettings)

	return nil
}

type updateSettingsRequest struct {
	ServerName *string `json:"serverName"`
}

type settingsResponse struct {
	ServerName      string `json:"serverName"`
	EffectiveServer string `json:"effectiveServer"`
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(toSettingsResponse(h.service.Current()))
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ServerName == nil {
		return fiber.NewError(fiber.StatusBadRequest, "serverName is required")
	}

	saved, err := h.service.Configure(c.UserContext(), domain.GlobalSettings{ServerName: *req.ServerName})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSettingsResponse(saved))
}

func toSettingsResponse(s domain.GlobalSettings) settingsResponse {
	return settingsResponse{
		ServerName:      s.ServerName,
		EffectiveServer: s.Server(),
	}
}
