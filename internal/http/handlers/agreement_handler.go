package handlers

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/http/dto"
	"github.com/private-escrow/escrowd/internal/middleware"
	"github.com/private-escrow/escrowd/internal/repositories"
	"github.com/private-escrow/escrowd/internal/services"
)

type AgreementHandler struct {
	escrowService *services.EscrowService
	journalRepo   *repositories.JournalRepo
	log           *zap.Logger
}

func NewAgreementHandler(escrowService *services.EscrowService, journalRepo *repositories.JournalRepo, log *zap.Logger) *AgreementHandler {
	return &AgreementHandler{escrowService: escrowService, journalRepo: journalRepo, log: log}
}

// canView limits full projections to the agreement's parties and, while a
// dispute is open, its judge.
func canView(c *fiber.Ctx, view *services.AgreementView) bool {
	addr := middleware.GetAddress(c)
	if addr == "" || !common.IsHexAddress(addr) {
		return false
	}
	caller := common.HexToAddress(addr)
	if view.Agreement.IsParty(caller) {
		return true
	}
	if view.Dispute != nil {
		return view.Dispute.Judge == caller || view.CallerIsArbitrator
	}
	return false
}

func (h *AgreementHandler) Get(c *fiber.Ctx) error {
	view, err := h.escrowService.View(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !canView(c, view) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this agreement"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *AgreementHandler) Refresh(c *fiber.Ctx) error {
	view, err := h.escrowService.Refresh(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !canView(c, view) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this agreement"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *AgreementHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateAgreementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if !common.IsHexAddress(req.Client) || !common.IsHexAddress(req.Developer) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "client and developer must be hex addresses"})
	}

	id, err := h.escrowService.CreateAgreement(c.Context(),
		common.HexToAddress(req.Client), common.HexToAddress(req.Developer), req.Total)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreatedResponse{ID: id})
}

func (h *AgreementHandler) SetTerms(c *fiber.Ctx) error {
	var req dto.SetTermsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.SetTerms(c.Context(), c.Params("id"), req.Deadline); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) AddMilestone(c *fiber.Ctx) error {
	var req dto.MilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.AddMilestone(c.Context(), c.Params("id"), req.Amount, req.Description); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) UpdateMilestone(c *fiber.Ctx) error {
	var req dto.UpdateMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.UpdateMilestone(c.Context(), c.Params("id"), req.Index, req.Amount, req.Description); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) RemoveLastMilestone(c *fiber.Ctx) error {
	if err := h.escrowService.RemoveLastMilestone(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) Sign(c *fiber.Ctx) error {
	if err := h.escrowService.Sign(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) Fund(c *fiber.Ctx) error {
	var req dto.FundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
		}
	}
	if err := h.escrowService.Fund(c.Context(), c.Params("id"), req.Amount); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) SubmitMilestone(c *fiber.Ctx) error {
	var req dto.SubmitMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.SubmitMilestone(c.Context(), c.Params("id"), req.Index, req.Comment); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) ApproveMilestone(c *fiber.Ctx) error {
	var req dto.MilestoneIndexRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.ApproveMilestone(c.Context(), c.Params("id"), req.Index); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) RejectMilestone(c *fiber.Ctx) error {
	var req dto.MilestoneIndexRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.RejectMilestone(c.Context(), c.Params("id"), req.Index); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) ClaimPayout(c *fiber.Ctx) error {
	if err := h.escrowService.ClaimPayout(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) RaiseDispute(c *fiber.Ctx) error {
	if err := h.escrowService.RaiseDispute(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) ResolveDispute(c *fiber.Ctx) error {
	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.ResolveDispute(c.Context(), c.Params("id"), req.ClientWins); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) RequestCancel(c *fiber.Ctx) error {
	if err := h.escrowService.RequestCancel(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) Cancel(c *fiber.Ctx) error {
	if err := h.escrowService.Cancel(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) ClaimRefund(c *fiber.Ctx) error {
	if err := h.escrowService.ClaimRefund(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AgreementHandler) GetDiscussion(c *fiber.Ctx) error {
	view, err := h.escrowService.View(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !canView(c, view) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this agreement"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view.Discussion})
}

func (h *AgreementHandler) PostDiscussionMessage(c *fiber.Ctx) error {
	var req dto.DiscussionMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if err := h.escrowService.AddDiscussionMessage(c.Context(), c.Params("id"), req.Message); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true})
}

// GetJournal returns the local audit trail for one agreement, newest first.
func (h *AgreementHandler) GetJournal(c *fiber.Ctx) error {
	view, err := h.escrowService.View(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !canView(c, view) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this agreement"})
	}

	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	entries, err := h.journalRepo.GetByAgreement(c.Context(), view.Agreement.ID, limit, offset)
	if err != nil {
		h.log.Error("journal read failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
