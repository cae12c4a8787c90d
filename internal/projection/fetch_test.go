package projection

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
)

type fakeLedger struct {
	mu sync.Mutex

	agreement  *escrow.Agreement
	milestones []escrow.Milestone
	dispute    *escrow.Dispute
	discussion []escrow.DiscussionMessage
	names      map[common.Address]string
	arbitrator bool

	agreementErr error
	milestoneErr error
}

func (f *fakeLedger) GetAgreement(ctx context.Context, id string) (*escrow.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agreementErr != nil {
		return nil, f.agreementErr
	}
	a := *f.agreement
	return &a, nil
}

func (f *fakeLedger) GetMilestones(ctx context.Context, id string, count int) ([]escrow.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.milestoneErr != nil {
		return nil, f.milestoneErr
	}
	return append([]escrow.Milestone(nil), f.milestones...), nil
}

func (f *fakeLedger) GetCancelFlags(ctx context.Context, id string) (bool, bool, error) {
	return false, false, nil
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
	return big.NewInt(1000), nil
}

func (f *fakeLedger) GetCreator(ctx context.Context, id string) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agreement.Client, nil
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
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.arbitrator, nil
}

func newFakeLedger() *fakeLedger {
	client := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dev := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return &fakeLedger{
		agreement: &escrow.Agreement{
			ID:             testID,
			Client:         client,
			Developer:      dev,
			State:          escrow.StateInProgress,
			Balance:        big.NewInt(1000),
			MilestoneCount: 2,
			CreatedAt:      1,
		},
		milestones: []escrow.Milestone{
			{Description: "design", Submitted: true},
			{Description: "build"},
		},
		discussion: []escrow.DiscussionMessage{{Sender: client, Message: "hi"}},
		names:      map[common.Address]string{client: "alice"},
	}
}

func TestFetchSnapshotAssemblesEverything(t *testing.T) {
	fl := newFakeLedger()
	f := NewFetcher(fl, fl.agreement.Developer)

	snap, err := f.FetchSnapshot(context.Background(), testID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if snap.Agreement.State != escrow.StateInProgress {
		t.Errorf("state = %v", snap.Agreement.State)
	}
	if len(snap.Milestones) != 2 || !snap.Milestones[0].Submitted {
		t.Error("milestones not assembled")
	}
	if snap.RequiredFund.Int64() != 1000 {
		t.Error("required fund not assembled")
	}
	if snap.Creator != fl.agreement.Client {
		t.Error("creator not assembled")
	}
	if len(snap.Discussion) != 1 {
		t.Error("discussion not assembled")
	}
	if snap.Names[fl.agreement.Client] != "alice" {
		t.Error("names not assembled")
	}
	if snap.Dispute != nil {
		t.Error("dispute must be absent outside the disputed state")
	}
	if snap.FetchedAt.IsZero() {
		t.Error("fetch time not stamped")
	}
}

func TestFetchSnapshotReadsDisputeWhenDisputed(t *testing.T) {
	fl := newFakeLedger()
	judge := common.HexToAddress("0x3333333333333333333333333333333333333333")
	fl.agreement.State = escrow.StateDisputed
	fl.dispute = &escrow.Dispute{Judge: judge}
	fl.arbitrator = true

	f := NewFetcher(fl, fl.agreement.Developer)
	snap, err := f.FetchSnapshot(context.Background(), testID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Dispute == nil || snap.Dispute.Judge != judge {
		t.Error("dispute not assembled")
	}
	if !snap.CallerIsArbitrator {
		t.Error("arbitrator flag not assembled")
	}
}

func TestFetchSnapshotPrimaryErrorGates(t *testing.T) {
	fl := newFakeLedger()
	fl.agreementErr = errutil.New(errutil.NotFound, "contract does not exist")

	f := NewFetcher(fl, common.Address{})
	if _, err := f.FetchSnapshot(context.Background(), testID); errutil.KindOf(err) != errutil.NotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFetchSnapshotSecondaryErrorFails(t *testing.T) {
	fl := newFakeLedger()
	fl.milestoneErr = errors.New("rpc down")

	f := NewFetcher(fl, common.Address{})
	if _, err := f.FetchSnapshot(context.Background(), testID); err == nil {
		t.Error("secondary read failure must fail the fetch")
	}
}
