package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ingesterr"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

// RemittanceResult summarizes one file's persistence outcome for verify.
type RemittanceResult struct {
	RemittanceID    int64
	ClaimsPersisted int
	ClaimsFailed    int
	ClaimsSkipped   int
}

// Remittance persists one parsed Remittance.Advice document, one
// transaction per remittance claim.
func (p *Persister) Remittance(ctx context.Context, file model.IngestionFile, doc *model.RemittanceDoc) (RemittanceResult, error) {
	var remittanceID int64
	err := p.pools.Ingestion.QueryRow(ctx, `
		INSERT INTO claims.remittance (ingestion_file_id, tx_at) VALUES ($1, $2)
		ON CONFLICT (ingestion_file_id) DO UPDATE SET tx_at = EXCLUDED.tx_at
		RETURNING id`, file.ID, doc.Header.TransactionDate).Scan(&remittanceID)
	if err != nil {
		return RemittanceResult{}, fmt.Errorf("insert remittance root for file %d: %w", file.ID, err)
	}

	result := RemittanceResult{RemittanceID: remittanceID}
	for _, claim := range doc.Claims {
		err := p.pools.WithTx(ctx, func(tx pgx.Tx) error {
			return p.persistRemittanceClaim(ctx, tx, file, remittanceID, doc.Header.TransactionDate, claim)
		})
		switch {
		case err == nil:
			result.ClaimsPersisted++
		case errors.Is(err, errSkipClaim):
			result.ClaimsSkipped++
		default:
			result.ClaimsFailed++
			p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "Claim", claim.ClaimID, "E_PERSIST_REMITTANCE_CLAIM", err, false)
			p.log.Error().Err(err).Str("claim_id", claim.ClaimID).Msg("persist remittance claim failed")
		}
	}
	if result.ClaimsSkipped > 0 || result.ClaimsFailed > 0 {
		p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "File", file.FileID, "REMITTANCE_FILE_SUMMARY",
			fmt.Errorf("%d claim(s) skipped, %d claim(s) failed out of %d", result.ClaimsSkipped, result.ClaimsFailed, len(doc.Claims)), false)
	}
	return result, nil
}

func (p *Persister) persistRemittanceClaim(ctx context.Context, tx pgx.Tx, file model.IngestionFile, remittanceID int64, txAt time.Time, c model.RemittanceClaim) error {
	if c.ClaimID == "" || c.IDPayer == "" {
		p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "Claim", c.ClaimID, "MISSING_REMIT_REQUIRED",
			fmt.Errorf("remittance claim missing required field (id/idPayer)"), false)
		return errSkipClaim
	}

	ckID, err := claimKeyID(ctx, tx, c.ClaimID)
	if err != nil {
		return err
	}

	payerRefID, err := p.refdata.Payer(ctx, tx, c.IDPayer, file.ID, c.ClaimID)
	if err != nil {
		return err
	}
	providerRefID, err := p.refdata.Provider(ctx, tx, c.ProviderID, file.ID, c.ClaimID)
	if err != nil {
		return err
	}
	var claimDenialRefID *int64
	if c.DenialCode != "" {
		claimDenialRefID, err = p.refdata.DenialCode(ctx, tx, c.DenialCode, file.ID, c.ClaimID)
		if err != nil {
			return err
		}
	}

	var remittanceClaimID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO claims.remittance_claim
			(remittance_id, claim_key_id, id_payer_ref_id, id_payer_code, provider_ref_id, provider_code,
			 payment_reference, date_settlement, denial_code_ref_id, denial_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (remittance_id, claim_key_id) DO UPDATE SET
			payment_reference = EXCLUDED.payment_reference, date_settlement = EXCLUDED.date_settlement,
			denial_code_ref_id = EXCLUDED.denial_code_ref_id, denial_code = EXCLUDED.denial_code
		RETURNING id`,
		remittanceID, ckID, payerRefID, c.IDPayer, providerRefID, c.ProviderID,
		c.PaymentReference, c.DateSettlement, claimDenialRefID, c.DenialCode).Scan(&remittanceClaimID)
	if err != nil {
		return fmt.Errorf("upsert remittance_claim %q: %w", c.ClaimID, err)
	}

	eventID, err := upsertEvent(ctx, tx, ckID, model.EventRemitted, txAt, nil, &remittanceID)
	if err != nil {
		return err
	}

	var paidAmount float64
	allDenied := len(c.Activities) > 0
	for _, a := range c.Activities {
		if err := p.persistRemittanceActivity(ctx, tx, file, remittanceClaimID, eventID, c.ClaimID, a); err != nil {
			return err
		}
		paidAmount += a.PaymentAmount
		if !(a.DenialCode != "" && a.PaymentAmount == 0) {
			allDenied = false
		}
	}

	netRequested, err := sumSubmittedNet(ctx, tx, ckID)
	if err != nil {
		return err
	}

	status := deriveStatus(paidAmount, netRequested, allDenied)
	if err := insertTimeline(ctx, tx, ckID, status, txAt, eventID); err != nil {
		return err
	}

	return p.recalculatePayment(ctx, tx, ckID, status, c.DateSettlement)
}

// sumSubmittedNet returns the sum of submission activity net amounts for
// every activity submitted against claimKeyID, the "netRequested" term in
// the status derivation rule. Zero when the claim has no submission on
// file yet (remittance arriving before its submission).
func sumSubmittedNet(ctx context.Context, tx pgx.Tx, claimKeyID int64) (float64, error) {
	var net float64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(a.net), 0)
		FROM claims.claim c
		JOIN claims.activity a ON a.claim_id = c.id
		WHERE c.claim_key_id = $1`, claimKeyID).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("sum submitted net for claim_key %d: %w", claimKeyID, err)
	}
	return net, nil
}

// centsEqual compares two monetary amounts tolerant of float64 rounding
// noise below a half-cent.
func centsEqual(a, b float64) bool {
	d := a - b
	return d > -0.005 && d < 0.005
}

// deriveStatus applies the remittance status rule: an exact match against
// what was requested is PAID, a partial positive payment is
// PARTIALLY_PAID, a fully denied zero-payment claim is REJECTED, and
// anything else (including a payment on a remittance-before-submission,
// where netRequested is 0) conservatively falls through to PARTIALLY_PAID.
// A zero payment against a zero netRequested matches exactly and is PAID.
func deriveStatus(paidAmount, netRequested float64, allDenied bool) model.TimelineStatus {
	switch {
	case centsEqual(paidAmount, netRequested) && netRequested >= 0:
		return model.StatusPaid
	case paidAmount > 0 && paidAmount < netRequested:
		return model.StatusPartiallyPaid
	case paidAmount == 0 && allDenied:
		return model.StatusRejected
	default:
		return model.StatusPartiallyPaid
	}
}

func (p *Persister) persistRemittanceActivity(ctx context.Context, tx pgx.Tx, file model.IngestionFile, remittanceClaimID, eventID int64, claimID string, a model.RemittanceActivity) error {
	var clinicianRefID *int64
	var err error
	if a.ClinicianID != "" {
		clinicianRefID, err = p.refdata.Clinician(ctx, tx, a.ClinicianID, file.ID, claimID)
		if err != nil {
			return err
		}
	}
	var denialRefID *int64
	if a.DenialCode != "" {
		denialRefID, err = p.refdata.DenialCode(ctx, tx, a.DenialCode, file.ID, claimID)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO claims.remittance_activity
			(remittance_claim_id, activity_id, net, list_price, gross, patient_share, payment_amount,
			 denial_code_ref_id, denial_code, clinician_ref_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (remittance_claim_id, activity_id) DO UPDATE SET
			net = EXCLUDED.net, list_price = EXCLUDED.list_price, gross = EXCLUDED.gross,
			patient_share = EXCLUDED.patient_share, payment_amount = EXCLUDED.payment_amount,
			denial_code_ref_id = EXCLUDED.denial_code_ref_id, denial_code = EXCLUDED.denial_code,
			clinician_ref_id = EXCLUDED.clinician_ref_id`,
		remittanceClaimID, a.ActivityID, a.Net, a.ListPrice, a.Gross, a.PatientShare, a.PaymentAmount,
		denialRefID, a.DenialCode, clinicianRefID)
	if err != nil {
		return fmt.Errorf("upsert remittance_activity %q for claim %q: %w", a.ActivityID, claimID, err)
	}

	var eventActivityID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO claims.claim_event_activity (claim_event_id, activity_id_at_event, payment_amount, denial_code)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (claim_event_id, activity_id_at_event) DO UPDATE SET
			payment_amount = EXCLUDED.payment_amount, denial_code = EXCLUDED.denial_code
		RETURNING id`, eventID, a.ActivityID, a.PaymentAmount, a.DenialCode).Scan(&eventActivityID)
	if err != nil {
		return fmt.Errorf("upsert claim_event_activity for activity %q: %w", a.ActivityID, err)
	}
	return nil
}

// recalculatePayment upserts the claims.claim_payment aggregate for the
// claim, triggered on every remittance persist.
func (p *Persister) recalculatePayment(ctx context.Context, tx pgx.Tx, claimKeyID int64, status model.TimelineStatus, settlement *time.Time) error {
	// c is unique per claim_key_id, so MAX(c.net) (not SUM) avoids
	// double-counting across the remittance_activity fan-out below.
	row := tx.QueryRow(ctx, `
		SELECT
			COALESCE(MAX(c.net), 0),
			COALESCE(SUM(ra.payment_amount), 0),
			COALESCE(SUM(CASE WHEN ra.denial_code <> '' AND ra.payment_amount = 0 THEN ra.net ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN ra.denial_code <> '' THEN ra.id END),
			COUNT(DISTINCT ra.id),
			MIN(s.tx_at),
			MAX(r.tx_at)
		FROM claims.claim_key ck
		LEFT JOIN claims.claim c ON c.claim_key_id = ck.id
		LEFT JOIN claims.submission s ON s.id = c.submission_id
		LEFT JOIN claims.remittance_claim rc ON rc.claim_key_id = ck.id
		LEFT JOIN claims.remittance r ON r.id = rc.remittance_id
		LEFT JOIN claims.remittance_activity ra ON ra.remittance_claim_id = rc.id
		WHERE ck.id = $1
		GROUP BY ck.id`, claimKeyID)

	var submitted, paidAmt, rejectedAmt float64
	var deniedCount, activityCount int
	var firstSubmission, lastRemittance *time.Time
	if err := row.Scan(&submitted, &paidAmt, &rejectedAmt, &deniedCount, &activityCount, &firstSubmission, &lastRemittance); err != nil {
		return fmt.Errorf("aggregate claim_payment for claim_key %d: %w", claimKeyID, err)
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO claims.claim_payment
			(claim_key_id, submitted_amount, paid_amount, rejected_amount, denied_count, activity_count,
			 first_submission_at, last_remittance_at, settlement_at, payment_status, processing_cycles, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,now())
		ON CONFLICT (claim_key_id) DO UPDATE SET
			submitted_amount = EXCLUDED.submitted_amount, paid_amount = EXCLUDED.paid_amount,
			rejected_amount = EXCLUDED.rejected_amount, denied_count = EXCLUDED.denied_count,
			activity_count = EXCLUDED.activity_count, last_remittance_at = EXCLUDED.last_remittance_at,
			settlement_at = EXCLUDED.settlement_at, payment_status = EXCLUDED.payment_status,
			processing_cycles = claims.claim_payment.processing_cycles + 1, updated_at = now()`,
		claimKeyID, submitted, paidAmt, rejectedAmt, deniedCount, activityCount,
		firstSubmission, lastRemittance, settlement, int(status))
	if err != nil {
		return fmt.Errorf("upsert claim_payment for claim_key %d: %w", claimKeyID, err)
	}
	return nil
}
