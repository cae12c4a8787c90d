package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/cofhe"
	"github.com/private-escrow/escrowd/internal/escrow"
	"github.com/private-escrow/escrowd/internal/projection"
)

// Ledger is everything the services need from the gateway.
type Ledger interface {
	projection.Ledger

	Account() common.Address
	ResolverAddress() common.Address

	GetInvite(ctx context.Context, id string) (*escrow.Invite, error)
	GetUserAgreementIDs(ctx context.Context, addr common.Address) ([]string, error)
	GetAddressByUsername(ctx context.Context, name string) (common.Address, error)

	CreateAgreement(ctx context.Context, client, developer common.Address, total cofhe.EncryptedInput, plainTotal *big.Int) (id, txHash string, err error)
	CreateInvite(ctx context.Context, isClientSide bool, total cofhe.EncryptedInput, plainTotal *big.Int) (id, txHash string, err error)
	AcceptInvite(ctx context.Context, inviteID string) (contractID, txHash string, err error)
	BailOutInvite(ctx context.Context, inviteID string) (string, error)

	SetTerms(ctx context.Context, id string, deadline uint64) (string, error)
	AddMilestone(ctx context.Context, id string, amount cofhe.EncryptedInput, description string) (string, error)
	UpdateMilestone(ctx context.Context, id string, index int, amount cofhe.EncryptedInput, description string) (string, error)
	RemoveLastMilestone(ctx context.Context, id string) (string, error)
	AddDiscussionMessage(ctx context.Context, id, message string) (string, error)

	Sign(ctx context.Context, id string) (string, error)
	Fund(ctx context.Context, id string, amount *big.Int) (string, error)
	SubmitMilestone(ctx context.Context, id string, index int, comment string) (string, error)
	ApproveMilestone(ctx context.Context, id string, index int) (string, error)
	RejectMilestone(ctx context.Context, id string, index int) (string, error)
	ClaimPayout(ctx context.Context, id string) (string, error)
	RaiseDispute(ctx context.Context, id string) (string, error)
	ResolveDispute(ctx context.Context, id string, clientWins bool) (string, error)
	ResolveDisputeViaResolver(ctx context.Context, id string, clientWins bool) (string, error)
	RequestCancel(ctx context.Context, id string) (string, error)
	Cancel(ctx context.Context, id string) (string, error)
	ClaimRefund(ctx context.Context, id string) (string, error)
	SetUsername(ctx context.Context, name string) (string, error)
}

// Encryptor seals plaintext amounts before they touch the ledger.
type Encryptor interface {
	EncryptUint128(ctx context.Context, value *big.Int) (cofhe.EncryptedInput, error)
}

// Syncer is the slice of the projection scheduler the services drive.
type Syncer interface {
	Watch(ctx context.Context, id string) error
	Unwatch(id string)
	Refresh(ctx context.Context, id string) error
	Ambient(id string)
}

// Journal persists the action audit trail. A nil-safe noop implementation
// backs tests and journal-less deployments.
type Journal interface {
	Record(ctx context.Context, entry escrow.JournalEntry) error
}

// NoopJournal drops every entry.
type NoopJournal struct{}

func (NoopJournal) Record(ctx context.Context, entry escrow.JournalEntry) error { return nil }
