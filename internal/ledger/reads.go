package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
)

// GetAgreement reads the public projection of one agreement. A revert from
// the ledger means the id references nothing.
func (g *Gateway) GetAgreement(ctx context.Context, id string) (*escrow.Agreement, error) {
	out, err := g.callEscrow(ctx, "getContract", escrow.IDToHash(id))
	if err != nil {
		return nil, errutil.Classify(err)
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("getContract: unexpected output arity %d", len(out))
	}

	a := &escrow.Agreement{
		ID:              id,
		Client:          out[0].(common.Address),
		Developer:       out[1].(common.Address),
		State:           escrow.State(out[2].(uint8)),
		Deadline:        out[3].(*big.Int).Uint64(),
		Balance:         out[4].(*big.Int),
		CreatedAt:       out[5].(*big.Int).Uint64(),
		ClientSigned:    out[6].(bool),
		DeveloperSigned: out[7].(bool),
		MilestoneCount:  int(out[8].(*big.Int).Int64()),
		ApprovedCount:   int(out[9].(*big.Int).Int64()),
	}

	// An unset client slot means the storage slot was never written.
	if a.Client == (common.Address{}) && a.Developer == (common.Address{}) && a.CreatedAt == 0 {
		return nil, errutil.New(errutil.NotFound, "contract does not exist")
	}
	return a, nil
}

// GetDispute reads the judge record from the raw storage struct.
func (g *Gateway) GetDispute(ctx context.Context, id string) (*escrow.Dispute, error) {
	out, err := g.callEscrow(ctx, "contracts", escrow.IDToHash(id))
	if err != nil {
		return nil, errutil.Classify(err)
	}
	if len(out) != 13 {
		return nil, fmt.Errorf("contracts: unexpected output arity %d", len(out))
	}
	return &escrow.Dispute{
		Judge:      out[10].(common.Address),
		Resolved:   out[11].(bool),
		ClientWins: out[12].(bool),
	}, nil
}

// GetMilestones reads every milestone of an agreement, merging flags,
// description and the completion comment into one slice.
func (g *Gateway) GetMilestones(ctx context.Context, id string, count int) ([]escrow.Milestone, error) {
	hash := escrow.IDToHash(id)
	milestones := make([]escrow.Milestone, 0, count)
	for i := 0; i < count; i++ {
		idx := big.NewInt(int64(i))

		out, err := g.callEscrow(ctx, "milestones", hash, idx)
		if err != nil {
			return nil, errutil.Classify(err)
		}
		m := escrow.Milestone{
			Submitted:   out[0].(bool),
			Approved:    out[1].(bool),
			SubmittedAt: out[2].(*big.Int).Uint64(),
		}

		if out, err = g.callEscrow(ctx, "milestoneDescriptions", hash, idx); err != nil {
			return nil, errutil.Classify(err)
		}
		m.Description = out[0].(string)

		if m.Submitted {
			if out, err = g.callEscrow(ctx, "milestoneCompletionComments", hash, idx); err != nil {
				return nil, errutil.Classify(err)
			}
			m.CompletionComment = out[0].(string)
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}

// GetCancelFlags reads both parties' pending cancel requests.
func (g *Gateway) GetCancelFlags(ctx context.Context, id string) (client, developer bool, err error) {
	hash := escrow.IDToHash(id)
	out, err := g.callEscrow(ctx, "clientCancelRequested", hash)
	if err != nil {
		return false, false, errutil.Classify(err)
	}
	client = out[0].(bool)
	out, err = g.callEscrow(ctx, "developerCancelRequested", hash)
	if err != nil {
		return false, false, errutil.Classify(err)
	}
	return client, out[0].(bool), nil
}

// GetRequiredFundAmount reads the plaintext mirror of the encrypted total,
// the amount fundEscrow must carry.
func (g *Gateway) GetRequiredFundAmount(ctx context.Context, id string) (*big.Int, error) {
	out, err := g.callEscrow(ctx, "requiredFundAmount", escrow.IDToHash(id))
	if err != nil {
		return nil, errutil.Classify(err)
	}
	return out[0].(*big.Int), nil
}

// GetCreator reads the address that created the agreement record.
func (g *Gateway) GetCreator(ctx context.Context, id string) (common.Address, error) {
	out, err := g.callEscrow(ctx, "contractCreator", escrow.IDToHash(id))
	if err != nil {
		return common.Address{}, errutil.Classify(err)
	}
	return out[0].(common.Address), nil
}

// GetDiscussion reads the full pre-sign discussion log in order.
func (g *Gateway) GetDiscussion(ctx context.Context, id string) ([]escrow.DiscussionMessage, error) {
	hash := escrow.IDToHash(id)
	out, err := g.callEscrow(ctx, "discussionMessageCount", hash)
	if err != nil {
		return nil, errutil.Classify(err)
	}
	count := int(out[0].(*big.Int).Int64())

	messages := make([]escrow.DiscussionMessage, 0, count)
	for i := 0; i < count; i++ {
		idx := big.NewInt(int64(i))
		var msg escrow.DiscussionMessage

		if out, err = g.callEscrow(ctx, "discussionSenders", hash, idx); err != nil {
			return nil, errutil.Classify(err)
		}
		msg.Sender = out[0].(common.Address)

		if out, err = g.callEscrow(ctx, "discussionMessages", hash, idx); err != nil {
			return nil, errutil.Classify(err)
		}
		msg.Message = out[0].(string)
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetInvite reads the invite slot. A zero creator means the id references
// nothing.
func (g *Gateway) GetInvite(ctx context.Context, id string) (*escrow.Invite, error) {
	hash := escrow.IDToHash(id)

	out, err := g.callEscrow(ctx, "inviteCreator", hash)
	if err != nil {
		return nil, errutil.Classify(err)
	}
	creator := out[0].(common.Address)
	if creator == (common.Address{}) {
		return nil, errutil.New(errutil.NotFound, "invite does not exist")
	}

	inv := &escrow.Invite{ID: id, Creator: creator}

	if out, err = g.callEscrow(ctx, "inviteIsClientSide", hash); err != nil {
		return nil, errutil.Classify(err)
	}
	inv.IsClientSide = out[0].(bool)

	if out, err = g.callEscrow(ctx, "inviteAcceptedBy", hash); err != nil {
		return nil, errutil.Classify(err)
	}
	inv.AcceptedBy = out[0].(common.Address)

	if out, err = g.callEscrow(ctx, "inviteContractId", hash); err != nil {
		return nil, errutil.Classify(err)
	}
	if contractID := out[0].([32]byte); contractID != ([32]byte{}) {
		inv.ContractID = escrow.CanonicalizeLenient(common.Hash(contractID).Hex())
	}
	return inv, nil
}

// GetUserAgreementIDs lists every agreement the address participates in,
// newest last.
func (g *Gateway) GetUserAgreementIDs(ctx context.Context, addr common.Address) ([]string, error) {
	out, err := g.callEscrow(ctx, "userContractCount", addr)
	if err != nil {
		return nil, errutil.Classify(err)
	}
	count := int(out[0].(*big.Int).Int64())

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out, err = g.callEscrow(ctx, "userContractIds", addr, big.NewInt(int64(i)))
		if err != nil {
			return nil, errutil.Classify(err)
		}
		raw := out[0].([32]byte)
		ids = append(ids, escrow.CanonicalizeLenient(common.Hash(raw).Hex()))
	}
	return ids, nil
}

// GetUsername reads the display name registered for an address, "" when none.
func (g *Gateway) GetUsername(ctx context.Context, addr common.Address) (string, error) {
	out, err := g.callEscrow(ctx, "usernames", addr)
	if err != nil {
		return "", errutil.Classify(err)
	}
	return out[0].(string), nil
}

// GetAddressByUsername resolves a registered name, zero when unclaimed.
func (g *Gateway) GetAddressByUsername(ctx context.Context, name string) (common.Address, error) {
	out, err := g.callEscrow(ctx, "getAddressByUsername", name)
	if err != nil {
		return common.Address{}, errutil.Classify(err)
	}
	return out[0].(common.Address), nil
}

// IsArbitrator asks the resolver contract whether addr sits on the panel.
// Without a configured resolver everyone is a non-arbitrator.
func (g *Gateway) IsArbitrator(ctx context.Context, addr common.Address) (bool, error) {
	if g.resolverAddr == (common.Address{}) {
		return false, nil
	}
	out, err := g.callResolver(ctx, "arbitrators", addr)
	if err != nil {
		return false, errutil.Classify(err)
	}
	return out[0].(bool), nil
}

func (g *Gateway) ResolverAddress() common.Address {
	return g.resolverAddr
}
