package escrow

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry records one submitted ledger action for audit and recovery.
type JournalEntry struct {
	ID          uuid.UUID
	AgreementID string
	Actor       string
	Action      string
	TxHash      string
	Status      string
	Detail      string
	CreatedAt   time.Time
}

// Journal entry statuses.
const (
	JournalPending   = "pending"
	JournalConfirmed = "confirmed"
	JournalFailed    = "failed"
)

// Journal action names, one per mutating ledger call.
const (
	ActionCreateAgreement  = "create_agreement"
	ActionCreateInvite     = "create_invite"
	ActionAcceptInvite     = "accept_invite"
	ActionBailOutInvite    = "bail_out_invite"
	ActionSetTerms         = "set_terms"
	ActionAddMilestone     = "add_milestone"
	ActionUpdateMilestone  = "update_milestone"
	ActionRemoveMilestone  = "remove_last_milestone"
	ActionSign             = "sign"
	ActionFund             = "fund"
	ActionSubmitMilestone  = "submit_milestone"
	ActionApproveMilestone = "approve_milestone"
	ActionRejectMilestone  = "reject_milestone"
	ActionClaimPayout      = "claim_payout"
	ActionRaiseDispute     = "raise_dispute"
	ActionResolveDispute   = "resolve_dispute"
	ActionRequestCancel    = "request_cancel"
	ActionCancel           = "cancel"
	ActionClaimRefund      = "claim_refund"
	ActionAddMessage       = "add_discussion_message"
	ActionSetUsername      = "set_username"
)
