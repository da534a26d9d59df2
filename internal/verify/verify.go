// Package verify compares a file's declared record count against what was
// actually persisted, producing a discrepancy report the orchestrator can
// act on before acknowledging the file upstream.
package verify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

// Discrepancy describes one declared-vs-persisted mismatch.
type Discrepancy struct {
	Kind     string // "count_mismatch"
	Detail   string
}

// Report is the outcome of verifying one ingested file.
type Report struct {
	OK               bool
	FilePersistedOK  bool
	Discrepancies    []Discrepancy
}

// Verifier counts persisted rows for a file and compares them to the
// header's declared record count.
type Verifier struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Verifier { return &Verifier{pool: pool} }

// VerifySubmission checks that the number of claims.claim rows linked to
// submissionID matches the file's DeclaredRecordCount.
func (v *Verifier) VerifySubmission(ctx context.Context, file model.IngestionFile, submissionID int64) (Report, error) {
	var persisted int
	err := v.pool.QueryRow(ctx, `
		SELECT count(*) FROM claims.claim WHERE submission_id = $1`, submissionID).Scan(&persisted)
	if err != nil {
		return Report{}, fmt.Errorf("count persisted claims for submission %d: %w", submissionID, err)
	}

	report := Report{OK: true, FilePersistedOK: true}
	if persisted != file.DeclaredRecordCount {
		report.OK = false
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:   "count_mismatch",
			Detail: fmt.Sprintf("declared %d claims, persisted %d", file.DeclaredRecordCount, persisted),
		})
	}
	return report, nil
}

// VerifyRemittance checks persisted remittance_claim row count the same way.
func (v *Verifier) VerifyRemittance(ctx context.Context, file model.IngestionFile, remittanceID int64) (Report, error) {
	var persisted int
	err := v.pool.QueryRow(ctx, `
		SELECT count(*) FROM claims.remittance_claim WHERE remittance_id = $1`, remittanceID).Scan(&persisted)
	if err != nil {
		return Report{}, fmt.Errorf("count persisted remittance claims for remittance %d: %w", remittanceID, err)
	}

	report := Report{OK: true, FilePersistedOK: true}
	if persisted != file.DeclaredRecordCount {
		report.OK = false
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:   "count_mismatch",
			Detail: fmt.Sprintf("declared %d claims, persisted %d", file.DeclaredRecordCount, persisted),
		})
	}
	return report, nil
}
