package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/http/dto"
	"github.com/private-escrow/escrowd/internal/services"
)

type InviteHandler struct {
	inviteService *services.InviteService
	log           *zap.Logger
}

func NewInviteHandler(inviteService *services.InviteService, log *zap.Logger) *InviteHandler {
	return &InviteHandler{inviteService: inviteService, log: log}
}

func (h *InviteHandler) Get(c *fiber.Ctx) error {
	view, err := h.inviteService.View(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *InviteHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	id, err := h.inviteService.Create(c.Context(), req.IsClientSide, req.Total)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreatedResponse{ID: id})
}

func (h *InviteHandler) Accept(c *fiber.Ctx) error {
	contractID, err := h.inviteService.Accept(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.AcceptInviteResponse{ContractID: contractID})
}

func (h *InviteHandler) BailOut(c *fiber.Ctx) error {
	if err := h.inviteService.BailOut(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
