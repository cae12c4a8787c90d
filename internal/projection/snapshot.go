// Package projection keeps local read models of on-ledger agreements in sync:
// authoritative snapshots come from periodic reads, optimistic hints bridge
// the gap between a submitted action and the read that confirms it.
package projection

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/escrow"
)

// Snapshot is one authoritative read of an agreement and everything hanging
// off it. Snapshots are immutable once stored; Render copies before applying
// hints.
type Snapshot struct {
	Agreement  escrow.Agreement           `json:"agreement"`
	Milestones []escrow.Milestone         `json:"milestones"`
	Discussion []escrow.DiscussionMessage `json:"discussion"`

	ClientCancelRequested    bool `json:"client_cancel_requested"`
	DeveloperCancelRequested bool `json:"developer_cancel_requested"`

	// Dispute is set only while the agreement is in the disputed state.
	Dispute *escrow.Dispute `json:"dispute,omitempty"`

	RequiredFund       *big.Int       `json:"required_fund"`
	Creator            common.Address `json:"creator"`
	CallerIsArbitrator bool           `json:"caller_is_arbitrator"`

	// Names maps party addresses to registered display names.
	Names map[common.Address]string `json:"names,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Clone returns a deep copy safe to mutate.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Milestones = append([]escrow.Milestone(nil), s.Milestones...)
	c.Discussion = append([]escrow.DiscussionMessage(nil), s.Discussion...)
	if s.Dispute != nil {
		d := *s.Dispute
		c.Dispute = &d
	}
	if s.RequiredFund != nil {
		c.RequiredFund = new(big.Int).Set(s.RequiredFund)
	}
	if s.Names != nil {
		c.Names = make(map[common.Address]string, len(s.Names))
		for k, v := range s.Names {
			c.Names[k] = v
		}
	}
	return &c
}

// Hint is an optimistic overlay recorded right after an action is submitted.
// Nil fields leave the snapshot untouched. Hints never survive the next
// authoritative read.
type Hint struct {
	State           *escrow.State
	ClientSigned    *bool
	DeveloperSigned *bool
	Deadline        *uint64
	Balance         *big.Int

	ClientCancelRequested    *bool
	DeveloperCancelRequested *bool

	// per-milestone flag overrides, keyed by index
	MilestoneSubmitted map[int]bool
	MilestoneApproved  map[int]bool

	AppliedAt time.Time
}

// merge folds other into h, other winning on conflicts.
func (h *Hint) merge(other *Hint) {
	if other.State != nil {
		h.State = other.State
	}
	if other.ClientSigned != nil {
		h.ClientSigned = other.ClientSigned
	}
	if other.DeveloperSigned != nil {
		h.DeveloperSigned = other.DeveloperSigned
	}
	if other.Deadline != nil {
		h.Deadline = other.Deadline
	}
	if other.Balance != nil {
		h.Balance = other.Balance
	}
	if other.ClientCancelRequested != nil {
		h.ClientCancelRequested = other.ClientCancelRequested
	}
	if other.DeveloperCancelRequested != nil {
		h.DeveloperCancelRequested = other.DeveloperCancelRequested
	}
	for i, v := range other.MilestoneSubmitted {
		if h.MilestoneSubmitted == nil {
			h.MilestoneSubmitted = map[int]bool{}
		}
		h.MilestoneSubmitted[i] = v
	}
	for i, v := range other.MilestoneApproved {
		if h.MilestoneApproved == nil {
			h.MilestoneApproved = map[int]bool{}
		}
		h.MilestoneApproved[i] = v
	}
	h.AppliedAt = other.AppliedAt
}

// apply overlays the hint onto a cloned snapshot.
func (h *Hint) apply(s *Snapshot) {
	if h.State != nil {
		s.Agreement.State = *h.State
	}
	if h.ClientSigned != nil {
		s.Agreement.ClientSigned = *h.ClientSigned
	}
	if h.DeveloperSigned != nil {
		s.Agreement.DeveloperSigned = *h.DeveloperSigned
	}
	if h.Deadline != nil {
		s.Agreement.Deadline = *h.Deadline
	}
	if h.Balance != nil {
		s.Agreement.Balance = new(big.Int).Set(h.Balance)
	}
	if h.ClientCancelRequested != nil {
		s.ClientCancelRequested = *h.ClientCancelRequested
	}
	if h.DeveloperCancelRequested != nil {
		s.DeveloperCancelRequested = *h.DeveloperCancelRequested
	}
	approved := 0
	for i := range s.Milestones {
		if v, ok := h.MilestoneSubmitted[i]; ok {
			s.Milestones[i].Submitted = v
		}
		if v, ok := h.MilestoneApproved[i]; ok {
			s.Milestones[i].Approved = v
		}
		if s.Milestones[i].Approved {
			approved++
		}
	}
	if len(h.MilestoneApproved) > 0 {
		s.Agreement.ApprovedCount = approved
	}
}

// helpers for building hints

func StatePtr(s escrow.State) *escrow.State { return &s }
func BoolPtr(b bool) *bool                  { return &b }
func Uint64Ptr(v uint64) *uint64            { return &v }
