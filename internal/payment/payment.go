// Package payment provides read access to the claims.claim_payment
// aggregate that persist.recalculatePayment maintains on every remittance
// write. Kept as its own package (rather than folded into persist) since
// the read path has no transactional coupling to the write path and is
// the natural seam for a future reporting surface to depend on.
package payment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

// Reader queries claims.claim_payment.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader { return &Reader{pool: pool} }

// ByClaimID looks up the payment aggregate for a single business claim ID.
func (r *Reader) ByClaimID(ctx context.Context, claimID string) (*model.ClaimPayment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT cp.id, cp.claim_key_id, cp.submitted_amount, cp.paid_amount, cp.rejected_amount,
		       cp.denied_count, cp.activity_count, cp.first_submission_at, cp.last_remittance_at,
		       cp.settlement_at, cp.payment_status, cp.processing_cycles, cp.payment_reference
		FROM claims.claim_payment cp
		JOIN claims.claim_key ck ON ck.id = cp.claim_key_id
		WHERE ck.claim_id = $1`, claimID)

	var p model.ClaimPayment
	var status int
	err := row.Scan(&p.ID, &p.ClaimKeyID, &p.SubmittedAmount, &p.PaidAmount, &p.RejectedAmount,
		&p.DeniedCount, &p.ActivityCount, &p.FirstSubmissionAt, &p.LastRemittanceAt,
		&p.SettlementAt, &status, &p.ProcessingCycles, &p.PaymentReference)
	if err != nil {
		return nil, fmt.Errorf("load claim_payment for claim %q: %w", claimID, err)
	}
	p.PaymentStatus = model.TimelineStatus(status)
	return &p, nil
}

// OutstandingSince returns every claim whose last remittance predates
// cutoff and is not yet fully resolved (PAID or REJECTED), used by an
// operational sweep to flag claims stuck mid-cycle.
func (r *Reader) OutstandingSince(ctx context.Context, cutoffUnixSeconds int64) ([]model.ClaimPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cp.id, cp.claim_key_id, cp.submitted_amount, cp.paid_amount, cp.rejected_amount,
		       cp.denied_count, cp.activity_count, cp.first_submission_at, cp.last_remittance_at,
		       cp.settlement_at, cp.payment_status, cp.processing_cycles, cp.payment_reference
		FROM claims.claim_payment cp
		WHERE cp.payment_status NOT IN ($1, $2)
		  AND extract(epoch from cp.last_remittance_at) < $3`,
		int(model.StatusPaid), int(model.StatusRejected), cutoffUnixSeconds)
	if err != nil {
		return nil, fmt.Errorf("query outstanding claim payments: %w", err)
	}
	defer rows.Close()

	var out []model.ClaimPayment
	for rows.Next() {
		var p model.ClaimPayment
		var status int
		if err := rows.Scan(&p.ID, &p.ClaimKeyID, &p.SubmittedAmount, &p.PaidAmount, &p.RejectedAmount,
			&p.DeniedCount, &p.ActivityCount, &p.FirstSubmissionAt, &p.LastRemittanceAt,
			&p.SettlementAt, &status, &p.ProcessingCycles, &p.PaymentReference); err != nil {
			return nil, err
		}
		p.PaymentStatus = model.TimelineStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
