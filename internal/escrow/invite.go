package escrow

import "github.com/ethereum/go-ethereum/common"

// Invite is a standing single-slot offer to join an agreement as the missing
// counterparty. acceptedBy is derived from the spawned agreement's
// opposite-role party once one exists; the invite itself only pins the slot.
type Invite struct {
	ID           string         `json:"id"`
	Creator      common.Address `json:"creator"`
	IsClientSide bool           `json:"is_client_side"` // creator occupies the client role
	AcceptedBy   common.Address `json:"accepted_by"`
	ContractID   string         `json:"contract_id"` // empty until accepted
}

// InviteStatus is the client-side view of the invite slot.
type InviteStatus string

const (
	InviteOpen     InviteStatus = "open"
	InviteAccepted InviteStatus = "accepted"
	InviteConsumed InviteStatus = "consumed"
)

func (inv *Invite) Accepted() bool {
	return inv.AcceptedBy != (common.Address{})
}

// Status derives the slot state from the invite and the spawned agreement
// (nil when none exists yet). Once both parties of the spawned agreement have
// signed, or it has otherwise finished, the invite is consumed for good.
func (inv *Invite) Status(spawned *Agreement) InviteStatus {
	if !inv.Accepted() {
		return InviteOpen
	}
	if inv.ConsumedBy(spawned) {
		return InviteConsumed
	}
	return InviteAccepted
}

// ConsumedBy reports whether the spawned agreement has gone far enough that
// the invite can never be vacated again.
func (inv *Invite) ConsumedBy(spawned *Agreement) bool {
	if spawned == nil {
		return false
	}
	if spawned.BothSigned() {
		return true
	}
	return spawned.State == StateCompleted || spawned.State == StateCancelled || spawned.State == StatePaidOut
}

// CanBailOut reports whether caller may vacate the slot: only the current
// acceptor, and only before the spawned agreement is fully signed.
func (inv *Invite) CanBailOut(caller common.Address, spawned *Agreement) bool {
	if !inv.Accepted() || inv.AcceptedBy != caller || inv.ContractID == "" {
		return false
	}
	return !inv.ConsumedBy(spawned)
}

// IsSelfAcceptance is the advisory check for an acceptor matching the
// creator. The ledger re-validates; this only drives the courtesy refusal.
func (inv *Invite) IsSelfAcceptance(acceptor common.Address) bool {
	return acceptor != (common.Address{}) && inv.Creator == acceptor
}
