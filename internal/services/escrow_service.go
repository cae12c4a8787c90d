package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/escrow"
	"github.com/private-escrow/escrowd/internal/events"
	"github.com/private-escrow/escrowd/internal/projection"
)

// DefaultDeadlineTerm is applied when terms are set without an explicit
// deadline.
const DefaultDeadlineTerm = 3 * 24 * time.Hour

// EscrowService orchestrates every agreement action: mirror the ledger's
// preconditions locally, seal encrypted inputs, submit, record an optimistic
// hint and let the scheduler reconcile. One action per agreement at a time.
type EscrowService struct {
	ledger    Ledger
	encryptor Encryptor
	store     *projection.Store
	syncer    Syncer
	journal   Journal
	publisher events.Publisher
	log       *zap.Logger

	inflight sync.Map
	nowFn    func() time.Time
}

func NewEscrowService(ledger Ledger, encryptor Encryptor, store *projection.Store, syncer Syncer, journal Journal, publisher events.Publisher, log *zap.Logger) *EscrowService {
	if journal == nil {
		journal = NoopJournal{}
	}
	return &EscrowService{
		ledger:    ledger,
		encryptor: encryptor,
		store:     store,
		syncer:    syncer,
		journal:   journal,
		publisher: publisher,
		log:       log,
		nowFn:     time.Now,
	}
}

// Availability is the per-viewer action surface computed from the rendered
// view. It mirrors what the ledger would allow so the API can withhold
// buttons that cannot succeed.
type Availability struct {
	CanEditTerms        bool `json:"can_edit_terms"`
	CanSign             bool `json:"can_sign"`
	CanFund             bool `json:"can_fund"`
	CanSubmitMilestone  bool `json:"can_submit_milestone"`
	CanApproveMilestone bool `json:"can_approve_milestone"`
	CanRequestCancel    bool `json:"can_request_cancel"`
	CanCancel           bool `json:"can_cancel"`
	CanClaimPayout      bool `json:"can_claim_payout"`
	CanClaimRefund      bool `json:"can_claim_refund"`
	CanRaiseDispute     bool `json:"can_raise_dispute"`
	CanResolveDispute   bool `json:"can_resolve_dispute"`
}

// AgreementView is what the API returns for one agreement: the rendered
// snapshot plus the viewer's role and action surface.
type AgreementView struct {
	*projection.Snapshot
	Viewer       common.Address `json:"viewer"`
	IsClient     bool           `json:"is_client"`
	IsDeveloper  bool           `json:"is_developer"`
	Pending      bool           `json:"pending"`
	Availability Availability   `json:"availability"`
}

// View canonicalizes a user-supplied id, ensures the agreement is being
// watched and renders the current projection.
func (s *EscrowService) View(ctx context.Context, rawID string) (*AgreementView, error) {
	id, err := escrow.CanonicalizeStrict(rawID)
	if err != nil {
		return nil, errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	if err := s.syncer.Watch(ctx, id); err != nil {
		return nil, err
	}
	snap := s.store.Render(id)
	if snap == nil {
		return nil, errutil.New(errutil.NotFound, "contract does not exist")
	}
	return s.buildView(id, snap), nil
}

// Refresh forces one authoritative read now, surfacing any error.
func (s *EscrowService) Refresh(ctx context.Context, rawID string) (*AgreementView, error) {
	id, err := escrow.CanonicalizeStrict(rawID)
	if err != nil {
		return nil, errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	if err := s.syncer.Refresh(ctx, id); err != nil {
		return nil, err
	}
	return s.buildView(id, s.store.Render(id)), nil
}

func (s *EscrowService) buildView(id string, snap *projection.Snapshot) *AgreementView {
	viewer := s.ledger.Account()
	a := &snap.Agreement
	now := uint64(s.nowFn().Unix())

	v := &AgreementView{
		Snapshot:    snap,
		Viewer:      viewer,
		IsClient:    a.IsClient(viewer),
		IsDeveloper: a.IsDeveloper(viewer),
		Pending:     s.store.HasHint(id),
	}
	isParty := v.IsClient || v.IsDeveloper

	av := &v.Availability
	av.CanEditTerms = a.State == escrow.StateDraft && isParty && !a.BothSigned()
	av.CanSign = a.State == escrow.StateDraft && isParty && a.MilestoneCount >= 1 &&
		((v.IsClient && !a.ClientSigned) || (v.IsDeveloper && !a.DeveloperSigned))
	av.CanFund = a.State == escrow.StateSigned && v.IsClient
	working := a.State == escrow.StateFunded || a.State == escrow.StateInProgress
	av.CanSubmitMilestone = working && v.IsDeveloper
	av.CanApproveMilestone = working && v.IsClient
	av.CanRaiseDispute = working && isParty
	av.CanClaimPayout = a.State == escrow.StateCompleted && v.IsDeveloper
	av.CanClaimRefund = a.CanClaimRefund(viewer, now)
	av.CanRequestCancel = isParty && !a.State.Terminal() && a.State != escrow.StateCompleted &&
		((v.IsClient && !snap.ClientCancelRequested) || (v.IsDeveloper && !snap.DeveloperCancelRequested))
	av.CanCancel = isParty && !a.State.Terminal() &&
		(a.State == escrow.StateDraft || (snap.ClientCancelRequested && snap.DeveloperCancelRequested))
	if snap.Dispute != nil && a.State == escrow.StateDisputed && !snap.Dispute.Resolved {
		av.CanResolveDispute = snap.Dispute.IsJudge(viewer, s.ledger.ResolverAddress(), snap.CallerIsArbitrator)
	}
	return v
}

// CreateAgreement seals the total and writes a new agreement for the named
// pair. The cleartext total rides along so the ledger can fix the required
// fund amount. Returns the canonical id the ledger assigned.
func (s *EscrowService) CreateAgreement(ctx context.Context, client, developer common.Address, totalEther string) (string, error) {
	total, err := escrow.ParseEther(totalEther)
	if err != nil {
		return "", errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	sealed, err := s.encryptor.EncryptUint128(ctx, total)
	if err != nil {
		return "", err
	}

	id, txHash, err := s.ledger.CreateAgreement(ctx, client, developer, sealed, total)
	if err != nil {
		return "", s.recordFailure(ctx, "", escrow.ActionCreateAgreement, err)
	}
	s.recordSuccess(ctx, id, escrow.ActionCreateAgreement, txHash)
	if err := s.syncer.Watch(ctx, id); err != nil {
		s.log.Warn("watch after create failed", zap.Error(err))
	}
	return id, nil
}

func (s *EscrowService) SetTerms(ctx context.Context, rawID string, deadline uint64) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanEditTerms {
		return errutil.New(errutil.LedgerRejected, "terms can only be changed on an unsigned draft by a party")
	}
	if deadline == 0 {
		deadline = uint64(s.nowFn().Add(DefaultDeadlineTerm).Unix())
	}
	if deadline <= uint64(s.nowFn().Unix()) {
		return errutil.New(errutil.LedgerRejected, "deadline must be in the future")
	}

	return s.submit(ctx, id, escrow.ActionSetTerms,
		&projection.Hint{Deadline: projection.Uint64Ptr(deadline)},
		func(ctx context.Context) (string, error) { return s.ledger.SetTerms(ctx, id, deadline) })
}

func (s *EscrowService) AddMilestone(ctx context.Context, rawID, amountEther, description string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanEditTerms {
		return errutil.New(errutil.LedgerRejected, "milestones can only be changed on an unsigned draft by a party")
	}
	amount, err := escrow.ParseEther(amountEther)
	if err != nil {
		return errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	sealed, err := s.encryptor.EncryptUint128(ctx, amount)
	if err != nil {
		return err
	}
	return s.submit(ctx, id, escrow.ActionAddMilestone, nil,
		func(ctx context.Context) (string, error) { return s.ledger.AddMilestone(ctx, id, sealed, description) })
}

func (s *EscrowService) UpdateMilestone(ctx context.Context, rawID string, index int, amountEther, description string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanEditTerms {
		return errutil.New(errutil.LedgerRejected, "milestones can only be changed on an unsigned draft by a party")
	}
	if index < 0 || index >= len(view.Milestones) {
		return errutil.New(errutil.IdentifierInvalid, fmt.Sprintf("milestone index %d out of range", index))
	}
	amount, err := escrow.ParseEther(amountEther)
	if err != nil {
		return errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	sealed, err := s.encryptor.EncryptUint128(ctx, amount)
	if err != nil {
		return err
	}
	return s.submit(ctx, id, escrow.ActionUpdateMilestone, nil,
		func(ctx context.Context) (string, error) {
			return s.ledger.UpdateMilestone(ctx, id, index, sealed, description)
		})
}

func (s *EscrowService) RemoveLastMilestone(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanEditTerms {
		return errutil.New(errutil.LedgerRejected, "milestones can only be changed on an unsigned draft by a party")
	}
	if len(view.Milestones) == 0 {
		return errutil.New(errutil.LedgerRejected, "no milestones to remove")
	}
	return s.submit(ctx, id, escrow.ActionRemoveMilestone, nil,
		func(ctx context.Context) (string, error) { return s.ledger.RemoveLastMilestone(ctx, id) })
}

func (s *EscrowService) AddDiscussionMessage(ctx context.Context, rawID, message string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return errutil.New(errutil.IdentifierInvalid, "message is empty")
	}
	if len(message) > escrow.MaxDiscussionMessageLen {
		return errutil.New(errutil.IdentifierInvalid,
			fmt.Sprintf("message exceeds %d characters", escrow.MaxDiscussionMessageLen))
	}
	if !view.IsClient && !view.IsDeveloper {
		return errutil.New(errutil.LedgerRejected, "only a party can post to the discussion")
	}

	err = s.submit(ctx, id, escrow.ActionAddMessage, nil,
		func(ctx context.Context) (string, error) { return s.ledger.AddDiscussionMessage(ctx, id, message) })
	if err != nil {
		return err
	}
	s.publish(ctx, events.StreamAgreements, events.EventDiscussionUpdated, id)
	return nil
}

func (s *EscrowService) Sign(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanSign {
		return errutil.New(errutil.LedgerRejected, "agreement cannot be signed by you in its current state")
	}

	hint := &projection.Hint{}
	otherSigned := false
	if view.IsClient {
		hint.ClientSigned = projection.BoolPtr(true)
		otherSigned = view.Agreement.DeveloperSigned
	} else {
		hint.DeveloperSigned = projection.BoolPtr(true)
		otherSigned = view.Agreement.ClientSigned
	}
	if otherSigned {
		hint.State = projection.StatePtr(escrow.StateSigned)
		if view.Agreement.Deadline == 0 {
			hint.Deadline = projection.Uint64Ptr(uint64(s.nowFn().Add(DefaultDeadlineTerm).Unix()))
		}
	}

	return s.submit(ctx, id, escrow.ActionSign, hint,
		func(ctx context.Context) (string, error) { return s.ledger.Sign(ctx, id) })
}

// Fund sends the escrow deposit as plaintext transaction value; only
// milestone splits stay sealed. When the ledger fixed a required amount at
// creation that exact amount is sent; otherwise the client picks one.
func (s *EscrowService) Fund(ctx context.Context, rawID, amountEther string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanFund {
		return errutil.New(errutil.LedgerRejected, "only the client can fund a fully signed agreement")
	}

	amount := view.RequiredFund
	if amount == nil || amount.Sign() <= 0 {
		if amountEther == "" {
			return errutil.New(errutil.LedgerRejected, "no required amount is set for this agreement, specify one")
		}
		amount, err = escrow.ParseEther(amountEther)
		if err != nil {
			return errutil.Wrap(errutil.IdentifierInvalid, err)
		}
		if amount.Sign() <= 0 {
			return errutil.New(errutil.IdentifierInvalid, "funding amount must be positive")
		}
	}

	return s.submit(ctx, id, escrow.ActionFund,
		&projection.Hint{State: projection.StatePtr(escrow.StateFunded), Balance: amount},
		func(ctx context.Context) (string, error) { return s.ledger.Fund(ctx, id, amount) })
}

func (s *EscrowService) SubmitMilestone(ctx context.Context, rawID string, index int, comment string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanSubmitMilestone {
		return errutil.New(errutil.LedgerRejected, "only the developer can submit work on a funded agreement")
	}
	if index < 0 || index >= len(view.Milestones) {
		return errutil.New(errutil.IdentifierInvalid, fmt.Sprintf("milestone index %d out of range", index))
	}
	if view.Milestones[index].Submitted {
		return errutil.New(errutil.LedgerRejected, "milestone already submitted")
	}

	hint := &projection.Hint{MilestoneSubmitted: map[int]bool{index: true}}
	if view.Agreement.State == escrow.StateFunded {
		hint.State = projection.StatePtr(escrow.StateInProgress)
	}
	return s.submit(ctx, id, escrow.ActionSubmitMilestone, hint,
		func(ctx context.Context) (string, error) { return s.ledger.SubmitMilestone(ctx, id, index, comment) })
}

func (s *EscrowService) ApproveMilestone(ctx context.Context, rawID string, index int) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanApproveMilestone {
		return errutil.New(errutil.LedgerRejected, "only the client can approve work on a funded agreement")
	}
	if index < 0 || index >= len(view.Milestones) {
		return errutil.New(errutil.IdentifierInvalid, fmt.Sprintf("milestone index %d out of range", index))
	}
	if !view.Milestones[index].Submitted {
		return errutil.New(errutil.LedgerRejected, "milestone has not been submitted yet")
	}
	if view.Milestones[index].Approved {
		return errutil.New(errutil.LedgerRejected, "milestone already approved")
	}

	next := escrow.PredictAfterApprove(view.Agreement.ApprovedCount+1, view.Agreement.MilestoneCount)
	hint := &projection.Hint{
		MilestoneApproved: map[int]bool{index: true},
		State:             projection.StatePtr(next),
	}
	return s.submit(ctx, id, escrow.ActionApproveMilestone, hint,
		func(ctx context.Context) (string, error) { return s.ledger.ApproveMilestone(ctx, id, index) })
}

func (s *EscrowService) RejectMilestone(ctx context.Context, rawID string, index int) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanApproveMilestone {
		return errutil.New(errutil.LedgerRejected, "only the client can reject work on a funded agreement")
	}
	if index < 0 || index >= len(view.Milestones) {
		return errutil.New(errutil.IdentifierInvalid, fmt.Sprintf("milestone index %d out of range", index))
	}
	if !view.Milestones[index].Submitted || view.Milestones[index].Approved {
		return errutil.New(errutil.LedgerRejected, "only a submitted, unapproved milestone can be rejected")
	}

	return s.submit(ctx, id, escrow.ActionRejectMilestone,
		&projection.Hint{MilestoneSubmitted: map[int]bool{index: false}},
		func(ctx context.Context) (string, error) { return s.ledger.RejectMilestone(ctx, id, index) })
}

func (s *EscrowService) ClaimPayout(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanClaimPayout {
		return errutil.New(errutil.LedgerRejected, "only the developer can claim payout of a completed agreement")
	}
	return s.submit(ctx, id, escrow.ActionClaimPayout,
		&projection.Hint{State: projection.StatePtr(escrow.StatePaidOut), Balance: big.NewInt(0)},
		func(ctx context.Context) (string, error) { return s.ledger.ClaimPayout(ctx, id) })
}

func (s *EscrowService) RaiseDispute(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanRaiseDispute {
		return errutil.New(errutil.LedgerRejected, "a dispute can only be raised by a party while work is funded")
	}
	return s.submit(ctx, id, escrow.ActionRaiseDispute,
		&projection.Hint{State: projection.StatePtr(escrow.StateDisputed)},
		func(ctx context.Context) (string, error) { return s.ledger.RaiseDispute(ctx, id) })
}

// ResolveDispute routes the ruling directly or through the resolver contract
// depending on how the judge slot is filled.
func (s *EscrowService) ResolveDispute(ctx context.Context, rawID string, clientWins bool) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanResolveDispute {
		return errutil.New(errutil.LedgerRejected, "you are not the judge of this dispute")
	}

	viaResolver := view.Dispute.JudgeIsResolver(s.ledger.ResolverAddress()) && view.CallerIsArbitrator
	return s.submit(ctx, id, escrow.ActionResolveDispute, nil,
		func(ctx context.Context) (string, error) {
			if viaResolver {
				return s.ledger.ResolveDisputeViaResolver(ctx, id, clientWins)
			}
			return s.ledger.ResolveDispute(ctx, id, clientWins)
		})
}

func (s *EscrowService) RequestCancel(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanRequestCancel {
		return errutil.New(errutil.LedgerRejected, "cancellation cannot be requested in the current state")
	}
	hint := &projection.Hint{}
	if view.IsClient {
		hint.ClientCancelRequested = projection.BoolPtr(true)
	} else {
		hint.DeveloperCancelRequested = projection.BoolPtr(true)
	}
	return s.submit(ctx, id, escrow.ActionRequestCancel, hint,
		func(ctx context.Context) (string, error) { return s.ledger.RequestCancel(ctx, id) })
}

func (s *EscrowService) Cancel(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanCancel {
		return errutil.New(errutil.LedgerRejected, "cancelling needs a draft or both parties' cancel requests")
	}
	return s.submit(ctx, id, escrow.ActionCancel,
		&projection.Hint{State: projection.StatePtr(escrow.StateCancelled)},
		func(ctx context.Context) (string, error) { return s.ledger.Cancel(ctx, id) })
}

func (s *EscrowService) ClaimRefund(ctx context.Context, rawID string) error {
	id, view, err := s.loadForAction(ctx, rawID)
	if err != nil {
		return err
	}
	if !view.Availability.CanClaimRefund {
		return errutil.New(errutil.LedgerRejected, "refund is only available to the client after the deadline with unapproved work")
	}
	return s.submit(ctx, id, escrow.ActionClaimRefund,
		&projection.Hint{State: projection.StatePtr(escrow.StateCancelled), Balance: big.NewInt(0)},
		func(ctx context.Context) (string, error) { return s.ledger.ClaimRefund(ctx, id) })
}

// loadForAction canonicalizes the id, ensures a fresh-enough view exists and
// returns both.
func (s *EscrowService) loadForAction(ctx context.Context, rawID string) (string, *AgreementView, error) {
	id, err := escrow.CanonicalizeStrict(rawID)
	if err != nil {
		return "", nil, errutil.Wrap(errutil.IdentifierInvalid, err)
	}
	if err := s.syncer.Watch(ctx, id); err != nil {
		return "", nil, err
	}
	snap := s.store.Render(id)
	if snap == nil {
		return "", nil, errutil.New(errutil.NotFound, "contract does not exist")
	}
	return id, s.buildView(id, snap), nil
}

// submit runs one write with the single-flight guard, journals the outcome
// and applies the optimistic hint only after the transaction is accepted.
func (s *EscrowService) submit(ctx context.Context, id, action string, hint *projection.Hint, fn func(context.Context) (string, error)) error {
	if _, loaded := s.inflight.LoadOrStore(id, struct{}{}); loaded {
		return errutil.ErrActionInFlight
	}
	defer s.inflight.Delete(id)

	s.publish(ctx, events.StreamActions, events.EventActionSubmitted, id)

	txHash, err := fn(ctx)
	if err != nil {
		return s.recordFailure(ctx, id, action, err)
	}

	if hint != nil {
		s.store.ApplyHint(id, hint)
	}
	s.recordSuccess(ctx, id, action, txHash)
	s.syncer.Ambient(id)
	return nil
}

// recordFailure journals a failed action. A declined signature is not a
// failure; nothing is journaled and no state changes.
func (s *EscrowService) recordFailure(ctx context.Context, id, action string, err error) error {
	classified := errutil.Classify(err)
	if errutil.KindOf(classified) == errutil.UserRejection {
		s.log.Info("action declined by signer", zap.String("action", action), zap.String("agreement", escrow.ShortID(id)))
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
	s.publish(ctx, events.StreamActions, events.EventActionFailed, id)
	s.log.Warn("action failed",
		zap.String("action", action),
		zap.String("agreement", escrow.ShortID(id)),
		zap.Error(classified))
	return classified
}

func (s *EscrowService) recordSuccess(ctx context.Context, id, action, txHash string) {
	if err := s.journal.Record(ctx, escrow.JournalEntry{
		AgreementID: id,
		Actor:       s.ledger.Account().Hex(),
		Action:      action,
		TxHash:      txHash,
		Status:      escrow.JournalConfirmed,
	}); err != nil {
		s.log.Warn("journal write failed", zap.Error(err))
	}
	s.publish(ctx, events.StreamActions, events.EventActionConfirmed, id)
	s.publish(ctx, events.StreamAgreements, events.EventAgreementUpdated, id)
	s.log.Info("action confirmed",
		zap.String("action", action),
		zap.String("agreement", escrow.ShortID(id)),
		zap.String("tx", txHash))
}

func (s *EscrowService) publish(ctx context.Context, stream, eventType, id string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, stream, events.Event{
		Type:    eventType,
		Payload: map[string]any{"id": id},
	})
	if err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
