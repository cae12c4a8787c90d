package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Agreement is the client projection of one escrow as read from the ledger.
// The ledger owns the true state; this struct is a read-through cache entry
// keyed by the canonical agreement id.
type Agreement struct {
	ID              string         `json:"id"`
	Client          common.Address `json:"client"`
	Developer       common.Address `json:"developer"`
	State           State          `json:"state"`
	Deadline        uint64         `json:"deadline"` // epoch seconds, 0 = unset
	Balance         *big.Int       `json:"balance"`
	CreatedAt       uint64         `json:"created_at"`
	ClientSigned    bool           `json:"client_signed"`
	DeveloperSigned bool           `json:"developer_signed"`
	MilestoneCount  int            `json:"milestone_count"`
	ApprovedCount   int            `json:"approved_count"`
}

func (a *Agreement) IsClient(addr common.Address) bool {
	return addr != (common.Address{}) && a.Client == addr
}

func (a *Agreement) IsDeveloper(addr common.Address) bool {
	return addr != (common.Address{}) && a.Developer == addr
}

func (a *Agreement) IsParty(addr common.Address) bool {
	return a.IsClient(addr) || a.IsDeveloper(addr)
}

func (a *Agreement) BothSigned() bool {
	return a.ClientSigned && a.DeveloperSigned
}

func (a *Agreement) DeadlinePassed(now uint64) bool {
	return a.Deadline > 0 && a.Deadline <= now
}

// CanClaimRefund mirrors the ledger's timeout-refund gate: client only, after
// the deadline, while work is incomplete and the agreement is not terminal.
func (a *Agreement) CanClaimRefund(caller common.Address, now uint64) bool {
	return a.IsClient(caller) &&
		a.DeadlinePassed(now) &&
		!a.State.Terminal() &&
		a.ApprovedCount < a.MilestoneCount
}

// Milestone is one ordered work item within an agreement. Milestones are
// append/remove-last only; approved implies submitted.
type Milestone struct {
	Submitted         bool   `json:"submitted"`
	Approved          bool   `json:"approved"`
	SubmittedAt       uint64 `json:"submitted_at"`
	Description       string `json:"description"`
	CompletionComment string `json:"completion_comment,omitempty"`
}

// Dispute is the judge record attached to a disputed agreement.
type Dispute struct {
	Judge      common.Address `json:"judge"`
	Resolved   bool           `json:"resolved"`
	ClientWins bool           `json:"client_wins"`
}

// IsJudge reports whether caller may resolve the dispute: the assigned judge,
// anyone when no judge was assigned, or any arbitrator when the judge slot is
// delegated to the resolver contract.
func (d *Dispute) IsJudge(caller, resolver common.Address, callerIsArbitrator bool) bool {
	if caller == (common.Address{}) {
		return false
	}
	if d.Judge == caller {
		return true
	}
	if d.Judge == (common.Address{}) {
		return true
	}
	return d.JudgeIsResolver(resolver) && callerIsArbitrator
}

func (d *Dispute) JudgeIsResolver(resolver common.Address) bool {
	return resolver != (common.Address{}) && d.Judge == resolver
}

// DiscussionMessage is one entry of the append-only pre-sign discussion log.
type DiscussionMessage struct {
	Sender  common.Address `json:"sender"`
	Message string         `json:"message"`
}

// MaxDiscussionMessageLen caps a single discussion message.
const MaxDiscussionMessageLen = 500
