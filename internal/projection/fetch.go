package projection

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/private-escrow/escrowd/internal/escrow"
)

// Ledger is the read surface the fetcher needs from the gateway.
type Ledger interface {
	GetAgreement(ctx context.Context, id string) (*escrow.Agreement, error)
	GetMilestones(ctx context.Context, id string, count int) ([]escrow.Milestone, error)
	GetCancelFlags(ctx context.Context, id string) (client, developer bool, err error)
	GetDispute(ctx context.Context, id string) (*escrow.Dispute, error)
	GetRequiredFundAmount(ctx context.Context, id string) (*big.Int, error)
	GetCreator(ctx context.Context, id string) (common.Address, error)
	GetDiscussion(ctx context.Context, id string) ([]escrow.DiscussionMessage, error)
	GetUsername(ctx context.Context, addr common.Address) (string, error)
	IsArbitrator(ctx context.Context, addr common.Address) (bool, error)
}

// Fetcher assembles full snapshots from individual ledger reads.
type Fetcher struct {
	ledger Ledger
	viewer common.Address
}

func NewFetcher(ledger Ledger, viewer common.Address) *Fetcher {
	return &Fetcher{ledger: ledger, viewer: viewer}
}

// FetchSnapshot reads the agreement and fans out to everything attached to
// it. The agreement read gates the rest; secondary reads run concurrently
// and all must land before the snapshot is assembled. Username and
// arbitrator lookups are best effort.
func (f *Fetcher) FetchSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	agreement, err := f.ledger.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Agreement: *agreement, Names: map[common.Address]string{}}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ms, err := f.ledger.GetMilestones(ctx, id, agreement.MilestoneCount)
		if err != nil {
			fail(err)
			return
		}
		snap.Milestones = ms
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, d, err := f.ledger.GetCancelFlags(ctx, id)
		if err != nil {
			fail(err)
			return
		}
		snap.ClientCancelRequested, snap.DeveloperCancelRequested = c, d
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		amount, err := f.ledger.GetRequiredFundAmount(ctx, id)
		if err != nil {
			fail(err)
			return
		}
		snap.RequiredFund = amount
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		creator, err := f.ledger.GetCreator(ctx, id)
		if err != nil {
			fail(err)
			return
		}
		snap.Creator = creator
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		msgs, err := f.ledger.GetDiscussion(ctx, id)
		if err != nil {
			fail(err)
			return
		}
		snap.Discussion = msgs
	}()

	if agreement.State == escrow.StateDisputed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispute, err := f.ledger.GetDispute(ctx, id)
			if err != nil {
				fail(err)
				return
			}
			snap.Dispute = dispute

			if arb, err := f.ledger.IsArbitrator(ctx, f.viewer); err == nil {
				snap.CallerIsArbitrator = arb
			}
		}()
	}

	for _, addr := range []common.Address{agreement.Client, agreement.Developer} {
		if addr == (common.Address{}) {
			continue
		}
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if name, err := f.ledger.GetUsername(ctx, addr); err == nil && name != "" {
				mu.Lock()
				snap.Names[addr] = name
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	snap.FetchedAt = time.Now()
	return snap, nil
}

// FetchDiscussion reads only the discussion log, for the slower poll.
func (f *Fetcher) FetchDiscussion(ctx context.Context, id string) ([]escrow.DiscussionMessage, error) {
	return f.ledger.GetDiscussion(ctx, id)
}
