package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/cofhe"
	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
)

// CreateAgreement writes a new two-party agreement and returns the id the
// ledger assigned to it. plainTotal is the cleartext mirror of the sealed
// amount; the ledger stores it as the required fund amount.
func (g *Gateway) CreateAgreement(ctx context.Context, client, developer common.Address, total cofhe.EncryptedInput, plainTotal *big.Int) (string, string, error) {
	receipt, err := g.transact(ctx, escrow.ActionCreateAgreement, "", nil,
		"createContract", client, developer, total, plainTotal)
	if err != nil {
		return "", "", errutil.Classify(err)
	}
	id := g.eventTopic(receipt, "ContractCreated")
	return escrow.CanonicalizeLenient(id.Hex()), receipt.TxHash.Hex(), nil
}

// CreateInvite opens a single-slot invite and returns its id.
func (g *Gateway) CreateInvite(ctx context.Context, isClientSide bool, total cofhe.EncryptedInput, plainTotal *big.Int) (string, string, error) {
	receipt, err := g.transact(ctx, escrow.ActionCreateInvite, "", nil,
		"createInvite", isClientSide, total, plainTotal)
	if err != nil {
		return "", "", errutil.Classify(err)
	}
	id := g.eventTopic(receipt, "InviteCreated")
	return escrow.CanonicalizeLenient(id.Hex()), receipt.TxHash.Hex(), nil
}

// AcceptInvite takes the open slot and returns the id of the agreement the
// ledger spawned for the pair.
func (g *Gateway) AcceptInvite(ctx context.Context, inviteID string) (string, string, error) {
	receipt, err := g.transact(ctx, escrow.ActionAcceptInvite, inviteID, nil,
		"acceptInvite", escrow.IDToHash(inviteID))
	if err != nil {
		return "", "", errutil.Classify(err)
	}

	// contractId rides in the event data, not a topic.
	var contractID string
	if ev, ok := g.escrow.Events["InviteAccepted"]; ok {
		for _, lg := range receipt.Logs {
			if lg.Address == g.escrowAddr && len(lg.Topics) > 0 && lg.Topics[0] == ev.ID && len(lg.Data) >= 32 {
				contractID = escrow.CanonicalizeLenient(common.BytesToHash(lg.Data[:32]).Hex())
				break
			}
		}
	}
	return contractID, receipt.TxHash.Hex(), nil
}

func (g *Gateway) BailOutInvite(ctx context.Context, inviteID string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionBailOutInvite, inviteID, "bailOutInvite", escrow.IDToHash(inviteID))
}

func (g *Gateway) SetTerms(ctx context.Context, id string, deadline uint64) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionSetTerms, id, "setTerms", escrow.IDToHash(id), new(big.Int).SetUint64(deadline))
}

func (g *Gateway) AddMilestone(ctx context.Context, id string, amount cofhe.EncryptedInput, description string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionAddMilestone, id, "addMilestone", escrow.IDToHash(id), amount, description)
}

func (g *Gateway) UpdateMilestone(ctx context.Context, id string, index int, amount cofhe.EncryptedInput, description string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionUpdateMilestone, id, "updateMilestone", escrow.IDToHash(id), big.NewInt(int64(index)), amount, description)
}

func (g *Gateway) RemoveLastMilestone(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionRemoveMilestone, id, "removeLastMilestone", escrow.IDToHash(id))
}

func (g *Gateway) AddDiscussionMessage(ctx context.Context, id, message string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionAddMessage, id, "addDiscussionMessage", escrow.IDToHash(id), message)
}

func (g *Gateway) Sign(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionSign, id, "signContract", escrow.IDToHash(id))
}

// Fund sends the required amount into escrow alongside the call.
func (g *Gateway) Fund(ctx context.Context, id string, amount *big.Int) (string, error) {
	receipt, err := g.transact(ctx, escrow.ActionFund, id, amount, "fundEscrow", escrow.IDToHash(id))
	if err != nil {
		return "", errutil.Classify(err)
	}
	return receipt.TxHash.Hex(), nil
}

func (g *Gateway) SubmitMilestone(ctx context.Context, id string, index int, comment string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionSubmitMilestone, id, "submitMilestone", escrow.IDToHash(id), big.NewInt(int64(index)), comment)
}

func (g *Gateway) ApproveMilestone(ctx context.Context, id string, index int) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionApproveMilestone, id, "approveMilestone", escrow.IDToHash(id), big.NewInt(int64(index)))
}

func (g *Gateway) RejectMilestone(ctx context.Context, id string, index int) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionRejectMilestone, id, "rejectMilestone", escrow.IDToHash(id), big.NewInt(int64(index)))
}

func (g *Gateway) ClaimPayout(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionClaimPayout, id, "claimPayout", escrow.IDToHash(id))
}

func (g *Gateway) RaiseDispute(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionRaiseDispute, id, "raiseDispute", escrow.IDToHash(id))
}

func (g *Gateway) ResolveDispute(ctx context.Context, id string, clientWins bool) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionResolveDispute, id, "resolveDispute", escrow.IDToHash(id), clientWins)
}

// ResolveDisputeViaResolver routes the ruling through the resolver contract,
// the path arbitrators use when the judge slot is delegated.
func (g *Gateway) ResolveDisputeViaResolver(ctx context.Context, id string, clientWins bool) (string, error) {
	receipt, err := g.transactAt(ctx, g.resolver, g.resolverAddr, escrow.ActionResolveDispute, id, nil,
		"resolveDispute", escrow.IDToHash(id), clientWins)
	if err != nil {
		return "", errutil.Classify(err)
	}
	return receipt.TxHash.Hex(), nil
}

func (g *Gateway) RequestCancel(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionRequestCancel, id, "requestCancel", escrow.IDToHash(id))
}

func (g *Gateway) Cancel(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionCancel, id, "cancelContract", escrow.IDToHash(id))
}

func (g *Gateway) ClaimRefund(ctx context.Context, id string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionClaimRefund, id, "claimRefund", escrow.IDToHash(id))
}

func (g *Gateway) SetUsername(ctx context.Context, name string) (string, error) {
	return g.simpleWrite(ctx, escrow.ActionSetUsername, "", "setUsername", name)
}

func (g *Gateway) simpleWrite(ctx context.Context, action, agreementID, method string, args ...interface{}) (string, error) {
	receipt, err := g.transact(ctx, action, agreementID, nil, method, args...)
	if err != nil {
		return "", errutil.Classify(err)
	}
	return receipt.TxHash.Hex(), nil
}
