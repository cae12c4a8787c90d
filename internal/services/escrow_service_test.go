package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/cofhe"
	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
	"github.com/private-escrow/escrowd/internal/projection"
)

var (
	clientAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	devAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	otherAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

const agreementID = "0x00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
const inviteID = "0xffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"

// fakeLedger mimics the on-chain contract closely enough to drive full
// lifecycles through the service layer.
type fakeLedger struct {
	mu sync.Mutex

	account common.Address

	agreement    *escrow.Agreement
	milestones   []escrow.Milestone
	cancelClient bool
	cancelDev    bool
	dispute      *escrow.Dispute
	requiredFund *big.Int
	creator      common.Address
	discussion   []escrow.DiscussionMessage
	names        map[common.Address]string

	invite *escrow.Invite

	// writeErr, when set, fails the next write with it
	writeErr error
	// blockWrites makes writes wait on this channel when non-nil
	blockWrites chan struct{}

	txSeq int
}

func newLifecycleLedger() *fakeLedger {
	return &fakeLedger{
		account: clientAddr,
		agreement: &escrow.Agreement{
			ID:        agreementID,
			Client:    clientAddr,
			Developer: devAddr,
			State:     escrow.StateDraft,
			Balance:   big.NewInt(0),
			CreatedAt: 1,
		},
		requiredFund: big.NewInt(0),
		creator:      clientAddr,
		names:        map[common.Address]string{},
	}
}

func (f *fakeLedger) setAccount(addr common.Address) {
	f.mu.Lock()
	f.account = addr
	f.mu.Unlock()
}

func (f *fakeLedger) Account() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account
}

func (f *fakeLedger) ResolverAddress() common.Address { return common.Address{} }

func (f *fakeLedger) GetAgreement(ctx context.Context, id string) (*escrow.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agreement == nil || id != f.agreement.ID {
		return nil, errutil.New(errutil.NotFound, "contract does not exist")
	}
	a := *f.agreement
	a.Balance = new(big.Int).Set(f.agreement.Balance)
	a.MilestoneCount = len(f.milestones)
	a.ApprovedCount = 0
	for _, m := range f.milestones {
		if m.Approved {
			a.ApprovedCount++
		}
	}
	return &a, nil
}

func (f *fakeLedger) GetMilestones(ctx context.Context, id string, count int) ([]escrow.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]escrow.Milestone(nil), f.milestones...), nil
}

func (f *fakeLedger) GetCancelFlags(ctx context.Context, id string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelClient, f.cancelDev, nil
}

func (f *fakeLedger) GetDispute(ctx context.Context, id string) (*escrow.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispute == nil {
		return &escrow.Dispute{}, nil
	}
	d := *f.dispute
	return &d, nil
}

func (f *fakeLedger) GetRequiredFundAmount(ctx context.Context, id string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.requiredFund), nil
}

func (f *fakeLedger) GetCreator(ctx context.Context, id string) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creator, nil
}

func (f *fakeLedger) GetDiscussion(ctx context.Context, id string) ([]escrow.DiscussionMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]escrow.DiscussionMessage(nil), f.discussion...), nil
}

func (f *fakeLedger) GetUsername(ctx context.Context, addr common.Address) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[addr], nil
}

func (f *fakeLedger) IsArbitrator(ctx context.Context, addr common.Address) (bool, error) {
	return false, nil
}

func (f *fakeLedger) GetInvite(ctx context.Context, id string) (*escrow.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invite == nil || id != f.invite.ID {
		return nil, errutil.New(errutil.NotFound, "invite does not exist")
	}
	inv := *f.invite
	return &inv, nil
}

func (f *fakeLedger) GetUserAgreementIDs(ctx context.Context, addr common.Address) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agreement == nil {
		return nil, nil
	}
	return []string{f.agreement.ID}, nil
}

func (f *fakeLedger) GetAddressByUsername(ctx context.Context, name string) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for addr, n := range f.names {
		if n == name {
			return addr, nil
		}
	}
	return common.Address{}, nil
}

// write gates every mutating call: injected errors, optional blocking, tx id.
func (f *fakeLedger) write() (string, error) {
	f.mu.Lock()
	block := f.blockWrites
	err := f.writeErr
	f.writeErr = nil
	f.txSeq++
	seq := f.txSeq
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0xtx%04d", seq), nil
}

func (f *fakeLedger) CreateAgreement(ctx context.Context, client, developer common.Address, total cofhe.EncryptedInput, plainTotal *big.Int) (string, string, error) {
	tx, err := f.write()
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	f.agreement = &escrow.Agreement{
		ID: agreementID, Client: client, Developer: developer,
		State: escrow.StateDraft, Balance: big.NewInt(0), CreatedAt: 1,
	}
	f.creator = f.account
	f.requiredFund = new(big.Int).Set(plainTotal)
	f.mu.Unlock()
	return agreementID, tx, nil
}

func (f *fakeLedger) CreateInvite(ctx context.Context, isClientSide bool, total cofhe.EncryptedInput, plainTotal *big.Int) (string, string, error) {
	tx, err := f.write()
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	f.invite = &escrow.Invite{ID: inviteID, Creator: f.account, IsClientSide: isClientSide}
	f.mu.Unlock()
	return inviteID, tx, nil
}

func (f *fakeLedger) AcceptInvite(ctx context.Context, inviteID string) (string, string, error) {
	tx, err := f.write()
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	f.invite.AcceptedBy = f.account
	f.invite.ContractID = agreementID
	client, dev := f.invite.Creator, f.account
	if !f.invite.IsClientSide {
		client, dev = f.account, f.invite.Creator
	}
	f.agreement = &escrow.Agreement{
		ID: agreementID, Client: client, Developer: dev,
		State: escrow.StateDraft, Balance: big.NewInt(0), CreatedAt: 1,
	}
	f.mu.Unlock()
	return agreementID, tx, nil
}

func (f *fakeLedger) BailOutInvite(ctx context.Context, inviteID string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.invite.AcceptedBy = common.Address{}
	f.invite.ContractID = ""
	f.agreement = nil
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) SetTerms(ctx context.Context, id string, deadline uint64) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.agreement.Deadline = deadline
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) AddMilestone(ctx context.Context, id string, amount cofhe.EncryptedInput, description string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones = append(f.milestones, escrow.Milestone{Description: description})
	f.requiredFund.Add(f.requiredFund, amount.CtHash) // fake: ct hash carries the amount
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) UpdateMilestone(ctx context.Context, id string, index int, amount cofhe.EncryptedInput, description string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones[index].Description = description
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) RemoveLastMilestone(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones = f.milestones[:len(f.milestones)-1]
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) AddDiscussionMessage(ctx context.Context, id, message string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.discussion = append(f.discussion, escrow.DiscussionMessage{Sender: f.account, Message: message})
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) Sign(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	if f.account == f.agreement.Client {
		f.agreement.ClientSigned = true
	} else {
		f.agreement.DeveloperSigned = true
	}
	if f.agreement.ClientSigned && f.agreement.DeveloperSigned {
		f.agreement.State = escrow.StateSigned
		if f.agreement.Deadline == 0 {
			f.agreement.Deadline = uint64(time.Now().Add(3 * 24 * time.Hour).Unix())
		}
	}
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) Fund(ctx context.Context, id string, amount *big.Int) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount.Cmp(f.requiredFund) < 0 {
		return "", fmt.Errorf("execution reverted: Insufficient funds")
	}
	f.agreement.State = escrow.StateFunded
	f.agreement.Balance = new(big.Int).Set(amount)
	return tx, nil
}

func (f *fakeLedger) SubmitMilestone(ctx context.Context, id string, index int, comment string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones[index].Submitted = true
	f.milestones[index].CompletionComment = comment
	f.agreement.State = escrow.StateInProgress
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) ApproveMilestone(ctx context.Context, id string, index int) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones[index].Approved = true
	all := true
	for _, m := range f.milestones {
		if !m.Approved {
			all = false
			break
		}
	}
	if all {
		f.agreement.State = escrow.StateCompleted
	}
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) RejectMilestone(ctx context.Context, id string, index int) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.milestones[index].Submitted = false
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) ClaimPayout(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.agreement.State = escrow.StatePaidOut
	f.agreement.Balance = big.NewInt(0)
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) RaiseDispute(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.agreement.State = escrow.StateDisputed
	f.dispute = &escrow.Dispute{}
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) ResolveDispute(ctx context.Context, id string, clientWins bool) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.dispute.Resolved = true
	f.dispute.ClientWins = clientWins
	if clientWins {
		f.agreement.State = escrow.StateCancelled
	} else {
		f.agreement.State = escrow.StatePaidOut
	}
	f.agreement.Balance = big.NewInt(0)
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) ResolveDisputeViaResolver(ctx context.Context, id string, clientWins bool) (string, error) {
	return f.ResolveDispute(ctx, id, clientWins)
}

func (f *fakeLedger) RequestCancel(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	if f.account == f.agreement.Client {
		f.cancelClient = true
	} else {
		f.cancelDev = true
	}
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) Cancel(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.agreement.State = escrow.StateCancelled
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) ClaimRefund(ctx context.Context, id string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.agreement.State = escrow.StateCancelled
	f.agreement.Balance = big.NewInt(0)
	f.mu.Unlock()
	return tx, nil
}

func (f *fakeLedger) SetUsername(ctx context.Context, name string) (string, error) {
	tx, err := f.write()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.names[f.account] = name
	f.mu.Unlock()
	return tx, nil
}

// fakeEncryptor passes the plaintext through as the ct hash so the fake
// ledger can do arithmetic on it.
type fakeEncryptor struct{}

func (fakeEncryptor) EncryptUint128(ctx context.Context, value *big.Int) (cofhe.EncryptedInput, error) {
	return cofhe.EncryptedInput{
		CtHash:       new(big.Int).Set(value),
		Utype:        cofhe.UtypeUint128,
		Signature:    []byte{0x01},
		SecurityZone: 0,
	}, nil
}

// fakeSyncer refetches synchronously, standing in for the scheduler.
type fakeSyncer struct {
	fetcher *projection.Fetcher
	store   *projection.Store
}

func (s *fakeSyncer) Watch(ctx context.Context, id string) error {
	if s.store.Authoritative(id) != nil {
		return nil
	}
	return s.Refresh(ctx, id)
}

func (s *fakeSyncer) Refresh(ctx context.Context, id string) error {
	snap, err := s.fetcher.FetchSnapshot(ctx, id)
	if err != nil {
		return err
	}
	s.store.Replace(id, snap)
	return nil
}

func (s *fakeSyncer) Ambient(id string) { _ = s.Refresh(context.Background(), id) }
func (s *fakeSyncer) Unwatch(id string) {}

type countingJournal struct {
	mu      sync.Mutex
	entries []escrow.JournalEntry
}

func (j *countingJournal) Record(ctx context.Context, entry escrow.JournalEntry) error {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
	return nil
}

func newTestService(fl *fakeLedger) (*EscrowService, *projection.Store, *countingJournal) {
	store := projection.NewStore(nil)
	syncer := &fakeSyncer{fetcher: projection.NewFetcher(fl, fl.Account()), store: store}
	journal := &countingJournal{}
	svc := NewEscrowService(fl, fakeEncryptor{}, store, syncer, journal, nil, zap.NewNop())
	return svc, store, journal
}

func TestFullLifecycleToPaidOut(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	// client shapes the draft: two milestones splitting 100
	if err := svc.AddMilestone(ctx, agreementID, "60", "design"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if err := svc.AddMilestone(ctx, agreementID, "40", "build"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if err := svc.SetTerms(ctx, agreementID, uint64(time.Now().Add(48*time.Hour).Unix())); err != nil {
		t.Fatalf("set terms: %v", err)
	}

	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("client sign: %v", err)
	}
	fl.setAccount(devAddr)
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("developer sign: %v", err)
	}

	view, err := svc.View(ctx, agreementID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Agreement.State != escrow.StateSigned {
		t.Fatalf("state after both signatures = %v, want %v", view.Agreement.State, escrow.StateSigned)
	}

	fl.setAccount(clientAddr)
	if err := svc.Fund(ctx, agreementID, ""); err != nil {
		t.Fatalf("fund: %v", err)
	}

	fl.setAccount(devAddr)
	if err := svc.SubmitMilestone(ctx, agreementID, 0, "design done"); err != nil {
		t.Fatalf("submit m0: %v", err)
	}
	fl.setAccount(clientAddr)
	if err := svc.ApproveMilestone(ctx, agreementID, 0); err != nil {
		t.Fatalf("approve m0: %v", err)
	}

	view, _ = svc.View(ctx, agreementID)
	if view.Agreement.State != escrow.StateInProgress {
		t.Fatalf("state after first approval = %v, want %v", view.Agreement.State, escrow.StateInProgress)
	}

	fl.setAccount(devAddr)
	if err := svc.SubmitMilestone(ctx, agreementID, 1, "build done"); err != nil {
		t.Fatalf("submit m1: %v", err)
	}
	fl.setAccount(clientAddr)
	if err := svc.ApproveMilestone(ctx, agreementID, 1); err != nil {
		t.Fatalf("approve m1: %v", err)
	}

	view, _ = svc.View(ctx, agreementID)
	if view.Agreement.State != escrow.StateCompleted {
		t.Fatalf("state after last approval = %v, want %v", view.Agreement.State, escrow.StateCompleted)
	}

	fl.setAccount(devAddr)
	if err := svc.ClaimPayout(ctx, agreementID); err != nil {
		t.Fatalf("claim payout: %v", err)
	}

	view, _ = svc.View(ctx, agreementID)
	if view.Agreement.State != escrow.StatePaidOut {
		t.Fatalf("final state = %v, want %v", view.Agreement.State, escrow.StatePaidOut)
	}
	if view.Agreement.Balance.Sign() != 0 {
		t.Errorf("final balance = %s, want 0", view.Agreement.Balance)
	}
}

func TestSignNeedsAtLeastOneMilestone(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	view, err := svc.View(ctx, agreementID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Availability.CanSign {
		t.Error("a draft with no milestones must not be signable")
	}
	if err := svc.Sign(ctx, agreementID); errutil.KindOf(err) != errutil.LedgerRejected {
		t.Fatalf("sign without milestones error = %v, want LedgerRejected", err)
	}

	if err := svc.AddMilestone(ctx, agreementID, "10", "work"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	view, _ = svc.View(ctx, agreementID)
	if !view.Availability.CanSign {
		t.Error("adding a milestone should make the draft signable")
	}
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("sign with a milestone: %v", err)
	}
}

func TestFundClientAmountWhenRequiredUnset(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	// a zero-amount milestone keeps the required fund unset while making
	// the draft signable
	if err := svc.AddMilestone(ctx, agreementID, "0", "work"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("client sign: %v", err)
	}
	fl.setAccount(devAddr)
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("developer sign: %v", err)
	}

	fl.setAccount(clientAddr)
	if err := svc.Fund(ctx, agreementID, ""); errutil.KindOf(err) != errutil.LedgerRejected {
		t.Fatalf("fund without an amount error = %v, want LedgerRejected", err)
	}
	if err := svc.Fund(ctx, agreementID, "bogus"); errutil.KindOf(err) != errutil.IdentifierInvalid {
		t.Fatalf("fund with an unparsable amount error = %v, want IdentifierInvalid", err)
	}
	if err := svc.Fund(ctx, agreementID, "7"); err != nil {
		t.Fatalf("fund with a chosen amount: %v", err)
	}

	view, err := svc.View(ctx, agreementID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Agreement.State != escrow.StateFunded {
		t.Fatalf("state after funding = %v, want %v", view.Agreement.State, escrow.StateFunded)
	}
	want, _ := escrow.ParseEther("7")
	if view.Agreement.Balance.Cmp(want) != 0 {
		t.Fatalf("balance after funding = %v, want %v", view.Agreement.Balance, want)
	}
}

func TestCancelNeedsBothRequests(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	// get past draft so unilateral cancel stops being allowed
	if err := svc.AddMilestone(ctx, agreementID, "10", "work"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("client sign: %v", err)
	}
	fl.setAccount(devAddr)
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("developer sign: %v", err)
	}

	fl.setAccount(clientAddr)
	if err := svc.RequestCancel(ctx, agreementID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if err := svc.Cancel(ctx, agreementID); err == nil {
		t.Fatal("cancel with one request must be refused")
	}

	fl.setAccount(devAddr)
	if err := svc.RequestCancel(ctx, agreementID); err != nil {
		t.Fatalf("counterparty request cancel: %v", err)
	}
	if err := svc.Cancel(ctx, agreementID); err != nil {
		t.Fatalf("cancel with both requests: %v", err)
	}

	view, _ := svc.View(ctx, agreementID)
	if view.Agreement.State != escrow.StateCancelled {
		t.Errorf("state = %v, want %v", view.Agreement.State, escrow.StateCancelled)
	}
}

func TestDeadlineRefund(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	fl.agreement.State = escrow.StateInProgress
	fl.agreement.ClientSigned = true
	fl.agreement.DeveloperSigned = true
	fl.agreement.Deadline = uint64(time.Now().Add(-time.Hour).Unix())
	fl.agreement.Balance = big.NewInt(100)
	fl.milestones = []escrow.Milestone{{Description: "work", Submitted: true}}
	svc, _, _ := newTestService(fl)

	// the developer has no refund path
	fl.setAccount(devAddr)
	if err := svc.ClaimRefund(ctx, agreementID); err == nil {
		t.Fatal("developer refund must be refused")
	}

	fl.setAccount(clientAddr)
	if err := svc.ClaimRefund(ctx, agreementID); err != nil {
		t.Fatalf("client refund after deadline: %v", err)
	}

	view, _ := svc.View(ctx, agreementID)
	if view.Agreement.State != escrow.StateCancelled {
		t.Errorf("state = %v, want %v", view.Agreement.State, escrow.StateCancelled)
	}
	if view.Agreement.Balance.Sign() != 0 {
		t.Errorf("balance = %s, want 0", view.Agreement.Balance)
	}
}

func TestRefundBeforeDeadlineRefused(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	fl.agreement.State = escrow.StateInProgress
	fl.agreement.Deadline = uint64(time.Now().Add(time.Hour).Unix())
	fl.milestones = []escrow.Milestone{{Description: "work"}}
	svc, _, _ := newTestService(fl)

	if err := svc.ClaimRefund(ctx, agreementID); err == nil {
		t.Fatal("refund before deadline must be refused")
	}
}

func TestUserRejectionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, store, journal := newTestService(fl)

	if _, err := svc.View(ctx, agreementID); err != nil {
		t.Fatalf("view: %v", err)
	}

	fl.mu.Lock()
	fl.writeErr = fmt.Errorf("User rejected the request.")
	fl.mu.Unlock()

	err := svc.Sign(ctx, agreementID)
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if errutil.KindOf(err) != errutil.UserRejection {
		t.Fatalf("kind = %v, want %v", errutil.KindOf(err), errutil.UserRejection)
	}

	// no optimistic hint, no journal entry
	if store.HasHint(agreementID) {
		t.Error("rejection must not leave a hint")
	}
	view, _ := svc.View(ctx, agreementID)
	if view.Agreement.ClientSigned {
		t.Error("rejection must not change the projection")
	}
	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.entries) != 0 {
		t.Errorf("rejection must not be journaled, got %d entries", len(journal.entries))
	}
}

func TestLedgerRevertIsJournaled(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, journal := newTestService(fl)

	fl.mu.Lock()
	fl.writeErr = fmt.Errorf("execution reverted: Not a party")
	fl.mu.Unlock()

	err := svc.Sign(ctx, agreementID)
	if errutil.KindOf(err) != errutil.LedgerRejected {
		t.Fatalf("kind = %v, want %v", errutil.KindOf(err), errutil.LedgerRejected)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(journal.entries))
	}
	e := journal.entries[0]
	if e.Status != escrow.JournalFailed {
		t.Errorf("status = %s, want %s", e.Status, escrow.JournalFailed)
	}
	if !strings.Contains(e.Detail, "Not a party") {
		t.Errorf("detail = %q, want revert reason", e.Detail)
	}
}

func TestConcurrentActionRefused(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	if _, err := svc.View(ctx, agreementID); err != nil {
		t.Fatalf("view: %v", err)
	}

	block := make(chan struct{})
	fl.mu.Lock()
	fl.blockWrites = block
	fl.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- svc.Sign(ctx, agreementID) }()

	// wait until the first action holds the slot
	deadline := time.After(2 * time.Second)
	for {
		if _, held := svc.inflight.Load(agreementID); held {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first action never took the in-flight slot")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := svc.SetTerms(ctx, agreementID, uint64(time.Now().Add(time.Hour).Unix())); err != errutil.ErrActionInFlight {
		t.Errorf("second action error = %v, want ErrActionInFlight", err)
	}

	fl.mu.Lock()
	fl.blockWrites = nil
	fl.mu.Unlock()
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first action: %v", err)
	}
}

func TestOptimisticHintVisibleBeforeReconcile(t *testing.T) {
	ctx := context.Background()
	fl := newLifecycleLedger()
	store := projection.NewStore(nil)
	fetcher := projection.NewFetcher(fl, fl.Account())

	// a syncer whose Ambient does nothing, so the hint stays visible
	syncer := &fakeSyncer{fetcher: fetcher, store: store}
	svc := NewEscrowService(fl, fakeEncryptor{}, store, staleSyncer{syncer}, nil, nil, zap.NewNop())

	if _, err := svc.View(ctx, agreementID); err != nil {
		t.Fatalf("view: %v", err)
	}
	if err := svc.Sign(ctx, agreementID); err != nil {
		t.Fatalf("sign: %v", err)
	}

	view, _ := svc.View(ctx, agreementID)
	if !view.Agreement.ClientSigned {
		t.Error("optimistic signature not visible")
	}
	if !view.Pending {
		t.Error("view must be marked pending while the hint is live")
	}
}

// staleSyncer suppresses ambient reconciliation.
type staleSyncer struct{ inner *fakeSyncer }

func (s staleSyncer) Watch(ctx context.Context, id string) error   { return s.inner.Watch(ctx, id) }
func (s staleSyncer) Refresh(ctx context.Context, id string) error { return s.inner.Refresh(ctx, id) }
func (s staleSyncer) Ambient(id string)                            {}
func (s staleSyncer) Unwatch(id string)                            {}

func TestInvalidIDRefused(t *testing.T) {
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	_, err := svc.View(context.Background(), "0x1234")
	if errutil.KindOf(err) != errutil.IdentifierInvalid {
		t.Errorf("kind = %v, want %v", errutil.KindOf(err), errutil.IdentifierInvalid)
	}
}

func TestDiscussionMessageTooLong(t *testing.T) {
	fl := newLifecycleLedger()
	svc, _, _ := newTestService(fl)

	long := strings.Repeat("a", escrow.MaxDiscussionMessageLen+1)
	if err := svc.AddDiscussionMessage(context.Background(), agreementID, long); err == nil {
		t.Fatal("over-length message must be refused")
	}
}
