package services

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/cache"
	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
)

// AccountService covers everything keyed by address rather than agreement:
// usernames and the cross-agreement dashboard.
type AccountService struct {
	ledger  Ledger
	cache   *cache.Cache
	journal Journal
	log     *zap.Logger

	usernameTTL  time.Duration
	dashboardTTL time.Duration
}

func NewAccountService(ledger Ledger, c *cache.Cache, journal Journal, dashboardTTL time.Duration, log *zap.Logger) *AccountService {
	if journal == nil {
		journal = NoopJournal{}
	}
	return &AccountService{
		ledger:       ledger,
		cache:        c,
		journal:      journal,
		log:          log,
		usernameTTL:  10 * time.Minute,
		dashboardTTL: dashboardTTL,
	}
}

// Username returns the display name for an address, "" when unregistered.
func (s *AccountService) Username(ctx context.Context, addr common.Address) (string, error) {
	if s.cache != nil {
		if name, ok := s.cache.GetUsername(ctx, addr); ok {
			return name, nil
		}
	}
	name, err := s.ledger.GetUsername(ctx, addr)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		s.cache.SetUsername(ctx, addr, name, s.usernameTTL)
	}
	return name, nil
}

// Resolve maps a registered name to its address, zero when unclaimed.
func (s *AccountService) Resolve(ctx context.Context, rawName string) (common.Address, error) {
	name := escrow.NormalizeUsername(rawName)
	if name == "" {
		return common.Address{}, errutil.New(errutil.IdentifierInvalid, "username is empty after normalization")
	}
	return s.ledger.GetAddressByUsername(ctx, name)
}

// SetUsername registers a display name for the daemon's own address.
func (s *AccountService) SetUsername(ctx context.Context, rawName string) (string, error) {
	name := escrow.NormalizeUsername(rawName)
	if name == "" {
		return "", errutil.New(errutil.IdentifierInvalid, "username must contain letters or digits")
	}

	if taken, err := s.ledger.GetAddressByUsername(ctx, name); err == nil {
		if taken != (common.Address{}) && taken != s.ledger.Account() {
			return "", errutil.New(errutil.LedgerRejected, "username already taken")
		}
	}

	txHash, err := s.ledger.SetUsername(ctx, name)
	if err != nil {
		return "", errutil.Classify(err)
	}

	if jerr := s.journal.Record(ctx, escrow.JournalEntry{
		Actor:  s.ledger.Account().Hex(),
		Action: escrow.ActionSetUsername,
		TxHash: txHash,
		Status: escrow.JournalConfirmed,
		Detail: name,
	}); jerr != nil {
		s.log.Warn("journal write failed", zap.Error(jerr))
	}
	if s.cache != nil {
		s.cache.InvalidateUsername(ctx, s.ledger.Account())
	}
	return name, nil
}

// DashboardRow is one agreement line. Unknown fields stay zeroed when the
// underlying read failed; Loaded tells the two cases apart.
type DashboardRow struct {
	ID               string `json:"id"`
	ShortID          string `json:"short_id"`
	Loaded           bool   `json:"loaded"`
	Role             string `json:"role,omitempty"`
	State            string `json:"state,omitempty"`
	Counterparty     string `json:"counterparty,omitempty"`
	CounterpartyName string `json:"counterparty_name,omitempty"`
	Balance          string `json:"balance,omitempty"`
	Deadline         uint64 `json:"deadline,omitempty"`
	MilestoneCount   int    `json:"milestone_count,omitempty"`
	ApprovedCount    int    `json:"approved_count,omitempty"`
}

// Dashboard is the cross-agreement overview for one address.
type Dashboard struct {
	Address       string         `json:"address"`
	Username      string         `json:"username,omitempty"`
	Active        []DashboardRow `json:"active"`
	History       []DashboardRow `json:"history"`
	TotalInEscrow string         `json:"total_in_escrow"`
	BuiltAt       time.Time      `json:"built_at"`
}

// BuildDashboard lists every agreement of the address, splits active from
// historic and sums the escrowed balances. A failed row read produces a
// placeholder instead of failing the whole board. Results are cached per
// address.
func (s *AccountService) BuildDashboard(ctx context.Context, addr common.Address, force bool) (*Dashboard, error) {
	if s.cache != nil && !force {
		var cached Dashboard
		if s.cache.GetDashboard(ctx, addr, &cached) {
			return &cached, nil
		}
	}

	ids, err := s.ledger.GetUserAgreementIDs(ctx, addr)
	if err != nil {
		return nil, err
	}

	board := &Dashboard{
		Address: addr.Hex(),
		Active:  []DashboardRow{},
		History: []DashboardRow{},
		BuiltAt: time.Now(),
	}
	if name, err := s.Username(ctx, addr); err == nil {
		board.Username = escrow.FormatUsername(name)
	}

	total := new(big.Int)
	// the ledger appends ids in creation order; the board lists newest first
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		row := DashboardRow{ID: id, ShortID: escrow.ShortID(id)}

		a, err := s.ledger.GetAgreement(ctx, id)
		if err != nil {
			s.log.Debug("dashboard row read failed", zap.String("agreement", row.ShortID), zap.Error(err))
			board.Active = append(board.Active, row)
			continue
		}

		row.Loaded = true
		row.State = a.State.String()
		row.Deadline = a.Deadline
		row.MilestoneCount = a.MilestoneCount
		row.ApprovedCount = a.ApprovedCount
		if a.Balance != nil {
			row.Balance = escrow.FormatEther(a.Balance)
		}

		counterparty := a.Developer
		row.Role = "client"
		if a.IsDeveloper(addr) {
			row.Role = "developer"
			counterparty = a.Client
		}
		if counterparty != (common.Address{}) {
			row.Counterparty = counterparty.Hex()
			if name, err := s.Username(ctx, counterparty); err == nil {
				row.CounterpartyName = escrow.FormatUsername(name)
			}
		}

		if a.State.Historic() {
			board.History = append(board.History, row)
		} else {
			board.Active = append(board.Active, row)
			if a.Balance != nil {
				total.Add(total, a.Balance)
			}
		}
	}
	board.TotalInEscrow = escrow.FormatEther(total)

	if s.cache != nil {
		s.cache.SetDashboard(ctx, addr, board, s.dashboardTTL)
	}
	return board, nil
}

// InvalidateDashboard drops the cached board, typically after an action.
func (s *AccountService) InvalidateDashboard(ctx context.Context, addr common.Address) {
	if s.cache != nil {
		s.cache.InvalidateDashboard(ctx, addr)
	}
}
