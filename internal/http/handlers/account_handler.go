package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/http/dto"
	"github.com/private-escrow/escrowd/internal/middleware"
	"github.com/private-escrow/escrowd/internal/services"
)

type AccountHandler struct {
	accountService *services.AccountService
	log            *zap.Logger
}

func NewAccountHandler(accountService *services.AccountService, log *zap.Logger) *AccountHandler {
	return &AccountHandler{accountService: accountService, log: log}
}

// Dashboard lists the caller's agreements. ?force=1 bypasses the cache.
func (h *AccountHandler) Dashboard(c *fiber.Ctx) error {
	addr := middleware.GetAddress(c)
	if !common.IsHexAddress(addr) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "no authenticated address"})
	}

	force := c.Query("force") == "1" || c.Query("force") == "true"
	board, err := h.accountService.BuildDashboard(c.Context(), common.HexToAddress(addr), force)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: board})
}

func (h *AccountHandler) GetUsername(c *fiber.Ctx) error {
	raw := c.Params("address")
	if !common.IsHexAddress(raw) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is not a valid hex address"})
	}
	addr := common.HexToAddress(raw)

	name, err := h.accountService.Username(c.Context(), addr)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.UsernameResponse{Address: addr.Hex(), Username: name})
}

func (h *AccountHandler) SetUsername(c *fiber.Ctx) error {
	var req dto.SetUsernameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	name, err := h.accountService.SetUsername(c.Context(), req.Username)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"username": name}})
}

// ResolveUsername maps a registered name to an address. The zero address
// means the name is unclaimed.
func (h *AccountHandler) ResolveUsername(c *fiber.Ctx) error {
	addr, err := h.accountService.Resolve(c.Context(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	if addr == (common.Address{}) {
		return respondError(c, errutil.New(errutil.NotFound, "username is not registered"))
	}
	return c.JSON(dto.UsernameResponse{Address: addr.Hex(), Username: c.Params("name")})
}
