package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
)

// dashboardLedger serves several agreements at once, which the shared fake
// does not need anywhere else.
type dashboardLedger struct {
	*fakeLedger
	ids        []string
	agreements map[string]*escrow.Agreement
}

func (f *dashboardLedger) GetUserAgreementIDs(ctx context.Context, addr common.Address) ([]string, error) {
	return append([]string(nil), f.ids...), nil
}

func (f *dashboardLedger) GetAgreement(ctx context.Context, id string) (*escrow.Agreement, error) {
	a, ok := f.agreements[id]
	if !ok {
		return nil, errutil.New(errutil.NotFound, "contract does not exist")
	}
	cp := *a
	cp.Balance = new(big.Int).Set(a.Balance)
	return &cp, nil
}

func TestDashboardNewestFirst(t *testing.T) {
	ctx := context.Background()

	ether := func(s string) *big.Int {
		v, err := escrow.ParseEther(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		return v
	}

	idOld := "0x" + "aa" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	idPaid := "0x" + "bb" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	idNew := "0x" + "cc" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	idGone := "0x" + "dd" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"

	fl := &dashboardLedger{
		fakeLedger: newLifecycleLedger(),
		// ledger order: oldest first, the board must reverse it
		ids: []string{idOld, idPaid, idNew, idGone},
		agreements: map[string]*escrow.Agreement{
			idOld: {ID: idOld, Client: clientAddr, Developer: devAddr,
				State: escrow.StateInProgress, Balance: ether("10")},
			idPaid: {ID: idPaid, Client: clientAddr, Developer: devAddr,
				State: escrow.StatePaidOut, Balance: big.NewInt(0)},
			idNew: {ID: idNew, Client: clientAddr, Developer: devAddr,
				State: escrow.StateFunded, Balance: ether("5")},
		},
	}

	svc := NewAccountService(fl, nil, nil, 0, zap.NewNop())
	board, err := svc.BuildDashboard(ctx, clientAddr, false)
	if err != nil {
		t.Fatalf("build dashboard: %v", err)
	}

	if len(board.Active) != 3 {
		t.Fatalf("active rows = %d, want 3", len(board.Active))
	}
	// newest first: the missing row leads, then the funded, then the oldest
	if board.Active[0].ID != idGone || board.Active[0].Loaded {
		t.Errorf("row 0 = %+v, want unloaded placeholder for %s", board.Active[0], escrow.ShortID(idGone))
	}
	if board.Active[1].ID != idNew {
		t.Errorf("row 1 = %s, want %s", board.Active[1].ShortID, escrow.ShortID(idNew))
	}
	if board.Active[2].ID != idOld {
		t.Errorf("row 2 = %s, want %s", board.Active[2].ShortID, escrow.ShortID(idOld))
	}

	if len(board.History) != 1 || board.History[0].ID != idPaid {
		t.Fatalf("history = %+v, want just %s", board.History, escrow.ShortID(idPaid))
	}
	if board.TotalInEscrow != "15" {
		t.Errorf("total in escrow = %q, want %q", board.TotalInEscrow, "15")
	}
}
