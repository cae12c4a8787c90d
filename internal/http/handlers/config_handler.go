package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/private-escrow/escrowd/internal/config"
	"github.com/private-escrow/escrowd/internal/http/dto"
	"github.com/private-escrow/escrowd/internal/ledger"
)

type ConfigHandler struct {
	cfg     *config.Config
	gateway *ledger.Gateway
}

func NewConfigHandler(cfg *config.Config, gateway *ledger.Gateway) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, gateway: gateway}
}

// Get exposes the effective chain settings so a frontend can mirror them.
func (h *ConfigHandler) Get(c *fiber.Ctx) error {
	account := h.gateway.Account()
	return c.JSON(dto.ConfigResponse{
		ChainID:               h.gateway.ChainID(),
		ChainName:             h.cfg.ChainName,
		EscrowContractAddress: h.cfg.EscrowContractAddress,
		Account:               account.Hex(),
		ReadOnly:              account == (common.Address{}),
	})
}
