package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearledger/compliance-backend/internal/domain/audit"
	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// VerificationLogRepository persists hash verification outcomes to the
// append-only verification_log table. There are deliberately no update
// or delete methods: a trigger on the table rejects UPDATE and DELETE,
// and this type never issues either.
type VerificationLogRepository struct {
	db *pgxpool.Pool
}

// NewVerificationLogRepository creates a new PostgreSQL verification log repository
func NewVerificationLogRepository(db *pgxpool.Pool) *VerificationLogRepository {
	return &VerificationLogRepository{db: db}
}

func (r *VerificationLogRepository) Append(ctx context.Context, records []*audit.VerificationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO verification_log (
				id, event_id, organization_id, verifier_id,
				is_valid, expected_hash, computed_hash, verified_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.EventID, rec.OrganizationID, rec.VerifierID,
			rec.IsValid, rec.ExpectedHash, rec.ComputedHash, rec.VerifiedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return errors.NewInternalError("failed to append verification records").WithCause(err)
		}
	}
	return nil
}

func (r *VerificationLogRepository) ListByEvent(ctx context.Context, orgID, eventID uuid.UUID) ([]*audit.VerificationRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, organization_id, verifier_id,
		       is_valid, expected_hash, computed_hash, verified_at
		FROM verification_log
		WHERE organization_id = $1 AND event_id = $2
		ORDER BY verified_at DESC`,
		orgID, eventID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list verification records").WithCause(err)
	}
	defer rows.Close()

	records := make([]*audit.VerificationRecord, 0)
	for rows.Next() {
		var rec audit.VerificationRecord
		err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.OrganizationID, &rec.VerifierID,
			&rec.IsValid, &rec.ExpectedHash, &rec.ComputedHash, &rec.VerifiedAt,
		)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan verification record").WithCause(err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate verification records").WithCause(err)
	}
	return records, nil
}
