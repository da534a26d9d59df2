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

// SubmissionResult summarizes one file's persistence outcome for verify.
type SubmissionResult struct {
	SubmissionID    int64
	ClaimsPersisted int
	ClaimsFailed    int
	ClaimsSkipped   int
}

// Submission persists one parsed Claim.Submission document. The root
// submission row is written once, outside any per-claim transaction;
// every claim then gets its own transaction so one malformed claim never
// rolls back its siblings.
func (p *Persister) Submission(ctx context.Context, file model.IngestionFile, doc *model.SubmissionDoc) (SubmissionResult, error) {
	var submissionID int64
	err := p.pools.Ingestion.QueryRow(ctx, `
		INSERT INTO claims.submission (ingestion_file_id, tx_at) VALUES ($1, $2)
		ON CONFLICT (ingestion_file_id) DO UPDATE SET tx_at = EXCLUDED.tx_at
		RETURNING id`, file.ID, doc.Header.TransactionDate).Scan(&submissionID)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("insert submission root for file %d: %w", file.ID, err)
	}

	attachmentsByClaim := make(map[string][]model.ParsedAttachment)
	for _, a := range doc.Attachments {
		attachmentsByClaim[a.ClaimID] = append(attachmentsByClaim[a.ClaimID], a)
	}

	result := SubmissionResult{SubmissionID: submissionID}
	for _, claim := range doc.Claims {
		err := p.pools.WithTx(ctx, func(tx pgx.Tx) error {
			return p.persistSubmissionClaim(ctx, tx, file, submissionID, doc.Header.TransactionDate, claim, attachmentsByClaim[claim.ClaimID])
		})
		switch {
		case err == nil:
			result.ClaimsPersisted++
		case errors.Is(err, errSkipClaim):
			// Already recorded (MISSING_CLAIM_REQUIRED / DUP_SUBMISSION_NO_RESUB);
			// a deliberate skip is not a persist failure.
			result.ClaimsSkipped++
		default:
			result.ClaimsFailed++
			p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "Claim", claim.ClaimID, "E_PERSIST_CLAIM", err, false)
			p.log.Error().Err(err).Str("claim_id", claim.ClaimID).Msg("persist submission claim failed")
		}
	}
	if result.ClaimsSkipped > 0 || result.ClaimsFailed > 0 {
		p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "File", file.FileID, "SUBMISSION_FILE_SUMMARY",
			fmt.Errorf("%d claim(s) skipped, %d claim(s) failed out of %d", result.ClaimsSkipped, result.ClaimsFailed, len(doc.Claims)), false)
	}
	return result, nil
}

// errSkipClaim signals that a claim was deliberately not persisted (a
// logged, non-fatal skip), as opposed to a transaction-rolling-back
// failure. Submission treats it as "no error, no rows" rather than a
// ClaimsFailed count.
var errSkipClaim = fmt.Errorf("persist: claim skipped")

func (p *Persister) persistSubmissionClaim(ctx context.Context, tx pgx.Tx, file model.IngestionFile, submissionID int64, txAt time.Time, c model.SubmissionClaim, attachments []model.ParsedAttachment) error {
	if c.ClaimID == "" || c.PayerID == "" || c.ProviderID == "" {
		p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "Claim", c.ClaimID, "MISSING_CLAIM_REQUIRED",
			fmt.Errorf("claim missing required field (id/payer/provider)"), false)
		return errSkipClaim
	}

	ckID, err := claimKeyID(ctx, tx, c.ClaimID)
	if err != nil {
		return err
	}

	if c.Resubmission == nil {
		alreadySubmitted, err := submittedEventExists(ctx, tx, ckID)
		if err != nil {
			return err
		}
		if alreadySubmitted {
			p.recordFailure(ctx, file.ID, ingesterr.StagePersist, "Claim", c.ClaimID, "DUP_SUBMISSION_NO_RESUB",
				fmt.Errorf("claim %q already has a SUBMITTED event and carries no resubmission", c.ClaimID), false)
			return errSkipClaim
		}
	}

	payerRefID, err := p.refdata.Payer(ctx, tx, c.PayerID, file.ID, c.ClaimID)
	if err != nil {
		return err
	}
	providerRefID, err := p.refdata.Provider(ctx, tx, c.ProviderID, file.ID, c.ClaimID)
	if err != nil {
		return err
	}

	var claimRowID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO claims.claim
			(submission_id, claim_key_id, payer_ref_id, payer_code, provider_ref_id, provider_code,
			 emirates_id_number, gross, patient_share, net, comments, tx_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (claim_key_id) DO UPDATE SET
			submission_id = EXCLUDED.submission_id, payer_ref_id = EXCLUDED.payer_ref_id,
			payer_code = EXCLUDED.payer_code, provider_ref_id = EXCLUDED.provider_ref_id,
			provider_code = EXCLUDED.provider_code, gross = EXCLUDED.gross,
			patient_share = EXCLUDED.patient_share, net = EXCLUDED.net, comments = EXCLUDED.comments,
			tx_at = EXCLUDED.tx_at
		RETURNING id`,
		submissionID, ckID, payerRefID, c.PayerID, providerRefID, c.ProviderID,
		c.EmiratesIDNumber, c.Gross, c.PatientShare, c.Net, c.Comments, txAt).Scan(&claimRowID)
	if err != nil {
		return fmt.Errorf("upsert claim %q: %w", c.ClaimID, err)
	}

	if c.Encounter != nil {
		if err := p.persistEncounter(ctx, tx, file, claimRowID, c.ClaimID, *c.Encounter); err != nil {
			return err
		}
	}
	for _, d := range c.Diagnoses {
		if err := p.persistDiagnosis(ctx, tx, file, claimRowID, c.ClaimID, d); err != nil {
			return err
		}
	}

	activityIDs := make(map[string]int64, len(c.Activities))
	for _, a := range c.Activities {
		actID, err := p.persistActivity(ctx, tx, file, claimRowID, c.ClaimID, a)
		if err != nil {
			return err
		}
		activityIDs[a.ActivityID] = actID
	}

	eventType := model.EventSubmitted
	if c.Resubmission != nil {
		eventType = model.EventResubmitted
	}
	eventID, err := upsertEvent(ctx, tx, ckID, eventType, txAt, &submissionID, nil)
	if err != nil {
		return err
	}

	for _, a := range c.Activities {
		if err := p.persistEventActivity(ctx, tx, eventID, a); err != nil {
			return err
		}
	}

	timelineStatus := model.StatusSubmitted
	if c.Resubmission != nil {
		timelineStatus = model.StatusResubmitted
	}
	if err := insertTimeline(ctx, tx, ckID, timelineStatus, txAt, eventID); err != nil {
		return err
	}

	if c.Resubmission != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO claims.claim_resubmission (claim_id, claim_event_id, type, comment, attachment)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (claim_id, claim_event_id) DO UPDATE SET comment = EXCLUDED.comment`,
			claimRowID, eventID, c.Resubmission.Type, c.Resubmission.Comment, c.Resubmission.Attachment)
		if err != nil {
			return fmt.Errorf("insert claim_resubmission for claim %q: %w", c.ClaimID, err)
		}
	}

	for _, a := range attachments {
		_, err := tx.Exec(ctx, `
			INSERT INTO claims.claim_attachment (claim_key_id, claim_event_id, file_name, bytes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (claim_key_id, claim_event_id, file_name) DO NOTHING`,
			ckID, eventID, a.FileName, a.Bytes)
		if err != nil {
			return fmt.Errorf("insert claim_attachment for claim %q: %w", c.ClaimID, err)
		}
	}

	return nil
}

func (p *Persister) persistEncounter(ctx context.Context, tx pgx.Tx, file model.IngestionFile, claimRowID int64, claimID string, e model.Encounter) error {
	facilityRefID, err := p.refdata.Facility(ctx, tx, e.FacilityID, file.ID, claimID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO claims.encounter (claim_id, facility_ref_id, facility_code, type, start_at, end_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (claim_id) DO UPDATE SET
			facility_ref_id = EXCLUDED.facility_ref_id, facility_code = EXCLUDED.facility_code,
			type = EXCLUDED.type, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at`,
		claimRowID, facilityRefID, e.FacilityID, e.Type, e.Start, e.End)
	if err != nil {
		return fmt.Errorf("upsert encounter for claim %q: %w", claimID, err)
	}
	return nil
}

func (p *Persister) persistDiagnosis(ctx context.Context, tx pgx.Tx, file model.IngestionFile, claimRowID int64, claimID string, d model.Diagnosis) error {
	diagRefID, err := p.refdata.DiagnosisCode(ctx, tx, d.Code, file.ID, claimID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO claims.diagnosis (claim_id, diagnosis_ref_id, code, type)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (claim_id, type, code) DO NOTHING`,
		claimRowID, diagRefID, d.Code, d.Type)
	if err != nil {
		return fmt.Errorf("insert diagnosis %s/%s for claim %q: %w", d.Type, d.Code, claimID, err)
	}
	return nil
}

func (p *Persister) persistActivity(ctx context.Context, tx pgx.Tx, file model.IngestionFile, claimRowID int64, claimID string, a model.SubmissionActivity) (int64, error) {
	activityRefID, err := p.refdata.ActivityCode(ctx, tx, a.Code, file.ID, claimID)
	if err != nil {
		return 0, err
	}
	var clinicianRefID *int64
	if a.ClinicianID != "" {
		clinicianRefID, err = p.refdata.Clinician(ctx, tx, a.ClinicianID, file.ID, claimID)
		if err != nil {
			return 0, err
		}
	}

	var activityRowID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO claims.activity
			(claim_id, activity_id, start_at, type, code, activity_ref_id, quantity, net,
			 clinician_ref_id, clinician_code, prior_auth_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (claim_id, activity_id) DO UPDATE SET
			start_at = EXCLUDED.start_at, type = EXCLUDED.type, code = EXCLUDED.code,
			activity_ref_id = EXCLUDED.activity_ref_id, quantity = EXCLUDED.quantity,
			net = EXCLUDED.net, clinician_ref_id = EXCLUDED.clinician_ref_id,
			clinician_code = EXCLUDED.clinician_code, prior_auth_id = EXCLUDED.prior_auth_id
		RETURNING id`,
		claimRowID, a.ActivityID, a.Start, a.Type, a.Code, activityRefID, a.Quantity, a.Net,
		clinicianRefID, a.ClinicianID, a.PriorAuthID).Scan(&activityRowID)
	if err != nil {
		return 0, fmt.Errorf("upsert activity %q for claim %q: %w", a.ActivityID, claimID, err)
	}

	for _, o := range a.Observations {
		_, err := tx.Exec(ctx, `
			INSERT INTO claims.observation (activity_id, obs_type, obs_code, value, value_type, value_bytes, value_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (activity_id, obs_type, obs_code, value_hash) DO NOTHING`,
			activityRowID, o.ObsType, o.ObsCode, o.Value, o.ValueType, o.ValueBytes, observationHash(o))
		if err != nil {
			return 0, fmt.Errorf("insert observation %s/%s for activity %q: %w", o.ObsType, o.ObsCode, a.ActivityID, err)
		}
	}
	return activityRowID, nil
}

func (p *Persister) persistEventActivity(ctx context.Context, tx pgx.Tx, eventID int64, a model.SubmissionActivity) error {
	var eventActivityID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO claims.claim_event_activity (claim_event_id, activity_id_at_event, net)
		VALUES ($1,$2,$3)
		ON CONFLICT (claim_event_id, activity_id_at_event) DO UPDATE SET net = EXCLUDED.net
		RETURNING id`, eventID, a.ActivityID, a.Net).Scan(&eventActivityID)
	if err != nil {
		return fmt.Errorf("upsert claim_event_activity for activity %q: %w", a.ActivityID, err)
	}

	for _, o := range a.Observations {
		_, err := tx.Exec(ctx, `
			INSERT INTO claims.event_observation (claim_event_activity_id, obs_type, obs_code, value)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (claim_event_activity_id, obs_type, obs_code) DO UPDATE SET value = EXCLUDED.value`,
			eventActivityID, o.ObsType, o.ObsCode, o.Value)
		if err != nil {
			return fmt.Errorf("upsert event_observation %s/%s: %w", o.ObsType, o.ObsCode, err)
		}
	}
	return nil
}
