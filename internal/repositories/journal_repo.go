package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/private-escrow/escrowd/internal/escrow"
)

type JournalRepo struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

func (r *JournalRepo) Record(ctx context.Context, entry escrow.JournalEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO action_journal (id, agreement_id, actor, action, tx_hash, status, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.AgreementID, entry.Actor, entry.Action, entry.TxHash, entry.Status, entry.Detail)
	return err
}

func (r *JournalRepo) SetStatus(ctx context.Context, id uuid.UUID, status, detail string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE action_journal SET status = $2, detail = $3 WHERE id = $1
	`, id, status, detail)
	return err
}

func (r *JournalRepo) GetByAgreement(ctx context.Context, agreementID string, limit, offset int) ([]escrow.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agreement_id, actor, action, tx_hash, status, detail, created_at
		FROM action_journal WHERE agreement_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, agreementID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []escrow.JournalEntry
	for rows.Next() {
		var e escrow.JournalEntry
		if err := rows.Scan(&e.ID, &e.AgreementID, &e.Actor, &e.Action, &e.TxHash, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *JournalRepo) GetByActor(ctx context.Context, actor string, limit, offset int) ([]escrow.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agreement_id, actor, action, tx_hash, status, detail, created_at
		FROM action_journal WHERE actor = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, actor, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []escrow.JournalEntry
	for rows.Next() {
		var e escrow.JournalEntry
		if err := rows.Scan(&e.ID, &e.AgreementID, &e.Actor, &e.Action, &e.TxHash, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
