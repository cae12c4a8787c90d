package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
	"github.com/private-escrow/escrowd/internal/events"
)

// InviteService handles the open-invite protocol: create a one-slot offer,
// accept it as the missing counterparty, or vacate the slot before both
// signatures land.
type InviteService struct {
	ledger    Ledger
	encryptor Encryptor
	syncer    Syncer
	journal   Journal
	publisher events.Publisher
	log       *zap.Logger
}

func NewInviteService(ledger Ledger, encryptor Encryptor, syncer Syncer, journal Journal, publisher events.Publisher, log *zap.Logger) *InviteService {
	if journal == nil {
		journal = NoopJournal{}
	}
	return &InviteService{
		ledger:    ledger,
		encryptor: encryptor,
		syncer:    syncer,
		journal:   journal,
		publisher: publisher,
		log:       log,
	}
}

// InviteView is the per-viewer rendering of an invite slot.
type InviteView struct {
	*escrow.Invite
	Status escrow.InviteStatus `json:"status"`

	// Available means the viewer could take the slot right now.
	Available  bool `json:"available"`
	IsCreator  bool `json:"is_creator"`
	CanBailOut bool `json:"can_bail_out"`

	// Spawned is the agreement the accepted invite produced, nil while open.
	Spawned *escrow.Agreement `json:"spawned,omitempty"`
}

// View reads the invite and, when accepted, the agreement it spawned, and
// derives the slot status for the viewer.
func (s *InviteService) View(ctx context.Context, rawID string) (*InviteView, error) {
	id, err := escrow.CanonicalizeStrict(rawID)
	if err != nil {
		return nil, errutil.Wrap(errutil.IdentifierInvalid, err)
	}

	inv, err := s.ledger.GetInvite(ctx, id)
	if err != nil {
		return nil, err
	}

	var spawned *escrow.Agreement
	if inv.ContractID != "" {
		spawned, err = s.ledger.GetAgreement(ctx, inv.ContractID)
		if err != nil && errutil.KindOf(err) != errutil.NotFound {
			return nil, err
		}
	}

	viewer := s.ledger.Account()
	status := inv.Status(spawned)
	return &InviteView{
		Invite:     inv,
		Status:     status,
		Available:  status == escrow.InviteOpen && !inv.IsSelfAcceptance(viewer),
		IsCreator:  inv.Creator == viewer,
		CanBailOut: inv.CanBailOut(viewer, spawned),
		Spawned:    spawned,
	}, nil
}

// Create seals the total and opens a new invite. isClientSide states which
// role the creator keeps for themselves.
func (s *InviteService) Create(ctx context.Context, isClientSide bool, totalEther string) (string, error) {
	total, err := escrow.ParseEther(totalEther)
	if err != nil {
		return "", errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	sealed, err := s.encryptor.EncryptUint128(ctx, total)
	if err != nil {
		return "", err
	}

	id, txHash, err := s.ledger.CreateInvite(ctx, isClientSide, sealed, total)
	if err != nil {
		return "", s.fail(ctx, "", escrow.ActionCreateInvite, err)
	}
	s.confirm(ctx, id, escrow.ActionCreateInvite, txHash)
	return id, nil
}

// Accept takes the open slot and starts watching the spawned agreement.
// Accepting your own invite is refused before anything is signed.
func (s *InviteService) Accept(ctx context.Context, rawID string) (string, error) {
	view, err := s.View(ctx, rawID)
	if err != nil {
		return "", err
	}
	if view.Status != escrow.InviteOpen {
		return "", errutil.New(errutil.NotFound, "this invite is no longer available")
	}
	if view.IsSelfAcceptance(s.ledger.Account()) {
		return "", errutil.New(errutil.LedgerRejected, "you cannot accept your own invite")
	}

	contractID, txHash, err := s.ledger.AcceptInvite(ctx, view.ID)
	if err != nil {
		return "", s.fail(ctx, view.ID, escrow.ActionAcceptInvite, err)
	}
	s.confirm(ctx, view.ID, escrow.ActionAcceptInvite, txHash)

	if contractID != "" {
		if err := s.syncer.Watch(ctx, contractID); err != nil {
			s.log.Warn("watch after accept failed", zap.Error(err))
		}
	}
	return contractID, nil
}

// BailOut vacates the slot the viewer previously accepted.
func (s *InviteService) BailOut(ctx context.Context, rawID string) error {
	view, err := s.View(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.CanBailOut {
		return errutil.New(errutil.LedgerRejected, "only the current acceptor can bail out before both signatures")
	}

	txHash, err := s.ledger.BailOutInvite(ctx, view.ID)
	if err != nil {
		return s.fail(ctx, view.ID, escrow.ActionBailOutInvite, err)
	}
	s.confirm(ctx, view.ID, escrow.ActionBailOutInvite, txHash)

	if view.ContractID != "" {
		s.syncer.Ambient(view.ContractID)
	}
	return nil
}

func (s *InviteService) fail(ctx context.Context, id, action string, err error) error {
	classified := errutil.Classify(err)
	if errutil.KindOf(classified) == errutil.UserRejection {
		return classified
	}
	if jerr := s.journal.Record(ctx, escrow.JournalEntry{
		AgreementID: id,
		Actor:       s.ledger.Account().Hex(),
		Action:      action,
		Status:      escrow.JournalFailed,
		Detail:      errutil.Message(classified),
	}); jerr != nil {
		s.log.Warn("journal write failed", zap.Error(jerr))
	}
	return classified
}

func (s *InviteService) confirm(ctx context.Context, id, action, txHash string) {
	if err := s.journal.Record(ctx, escrow.JournalEntry{
		AgreementID: id,
		Actor:       s.ledger.Account().Hex(),
		Action:      action,
		TxHash:      txHash,
		Status:      escrow.JournalConfirmed,
	}); err != nil {
		s.log.Warn("journal write failed", zap.Error(err))
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.StreamInvites, events.Event{
			Type:    events.EventInviteUpdated,
			Payload: map[string]any{"id": id},
		})
	}
}
