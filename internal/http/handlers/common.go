package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/http/dto"
)

// respondError maps classified failures to HTTP statuses. Unknown ids send
// the caller back to the dashboard instead of a dead end.
func respondError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errutil.ErrActionInFlight) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: err.Error(),
			Kind:  "action_in_flight",
		})
	}

	kind := errutil.KindOf(err)
	msg := errutil.Message(err)
	resp := dto.ErrorResponse{
		Error:      msg,
		Kind:       string(kind),
		Suggestion: errutil.Suggestion(msg),
	}

	status := fiber.StatusInternalServerError
	switch kind {
	case errutil.IdentifierInvalid:
		status = fiber.StatusBadRequest
	case errutil.UserRejection:
		status = fiber.StatusConflict
	case errutil.NotFound:
		status = fiber.StatusNotFound
		resp.RedirectTo = "/"
	case errutil.LedgerRejected:
		status = fiber.StatusUnprocessableEntity
	case errutil.WrongNetwork, errutil.ConfigurationMissing, errutil.EncryptionUnavailable:
		status = fiber.StatusServiceUnavailable
	case errutil.NetworkFailure:
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(resp)
}
