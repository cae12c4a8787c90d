package handlers

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/auth"
	"github.com/private-escrow/escrowd/internal/config"
	"github.com/private-escrow/escrowd/internal/http/dto"
)

type AuthHandler struct {
	challenger *auth.Challenger
	cfg        *config.Config
	log        *zap.Logger
}

func NewAuthHandler(challenger *auth.Challenger, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{challenger: challenger, cfg: cfg, log: log}
}

// Challenge hands out the message the wallet must sign to log in.
func (h *AuthHandler) Challenge(c *fiber.Ctx) error {
	var req dto.ChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if !common.IsHexAddress(req.Address) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is not a valid hex address"})
	}

	message, err := h.challenger.Challenge(c.Context(), common.HexToAddress(req.Address))
	if err != nil {
		h.log.Error("challenge issue failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.ChallengeResponse{Message: message})
}

// Login verifies the signed challenge and issues a session token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if !common.IsHexAddress(req.Address) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is not a valid hex address"})
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "signature is not valid hex"})
	}

	addr := common.HexToAddress(req.Address)
	if err := h.challenger.Verify(c.Context(), addr, sig); err != nil {
		h.log.Debug("login verification failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, addr.Hex(), h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, Address: addr.Hex()})
}
