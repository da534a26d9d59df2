// Package refdata resolves external business codes (payer, provider,
// facility, clinician, activity, diagnosis, denial) against claims_ref.*
// master tables, auto-inserting first-sight codes and recording a
// claims_ref.code_discovery_audit row for each one.
package refdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// Resolver resolves and (optionally) auto-registers reference codes.
type Resolver struct {
	pool        *pgxpool.Pool
	autoInsert  bool
	bootstrap   bool
	log         zerolog.Logger
}

func New(pool *pgxpool.Pool, cfg *config.Config, log zerolog.Logger) *Resolver {
	return &Resolver{
		pool:       pool,
		autoInsert: cfg.RefdataAutoInsert,
		bootstrap:  cfg.RefdataBootstrapEnabled,
		log:        log.With().Str("component", "refdata").Logger(),
	}
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so resolution can
// run inside the caller's claim transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// namedCodeTables hold (code, name); valuedCodeTables hold (code, description).
var namedCodeTables = map[string]bool{
	"payer": true, "provider": true, "facility": true, "clinician": true,
}

// resolve looks a code up by external code in the given claims_ref table,
// auto-inserting (and auditing the discovery) on miss if enabled.
// ingestionFileID/claimExternalID are zero-value-safe for audit context.
func (r *Resolver) resolve(ctx context.Context, q Querier, table, code string, ingestionFileID int64, claimExternalID, discoveredBy string) (*int64, error) {
	if code == "" {
		return nil, nil
	}
	if !r.bootstrap {
		// With reference-data bootstrap disabled, skip resolution entirely
		// (no lookup, no audit row) and let the claim persist with a NULL
		// ref FK plus the raw code column.
		return nil, nil
	}

	selectSQL := fmt.Sprintf(`SELECT id FROM claims_ref.%s WHERE code = $1`, table)
	var id int64
	err := q.QueryRow(ctx, selectSQL, code).Scan(&id)
	if err == nil {
		return &id, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("resolve %s %q: %w", table, code, err)
	}

	if !r.autoInsert {
		return nil, nil
	}

	var insertSQL string
	if namedCodeTables[table] {
		insertSQL = fmt.Sprintf(`
			INSERT INTO claims_ref.%s (code, name, status)
			VALUES ($1, $1, 'ACTIVE')
			ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
			RETURNING id`, table)
	} else {
		insertSQL = fmt.Sprintf(`
			INSERT INTO claims_ref.%s (code, description, status)
			VALUES ($1, '', 'ACTIVE')
			ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
			RETURNING id`, table)
	}
	if err := q.QueryRow(ctx, insertSQL, code).Scan(&id); err != nil {
		return nil, fmt.Errorf("auto-insert %s %q: %w", table, code, err)
	}

	const auditSQL = `
		INSERT INTO claims_ref.code_discovery_audit
			(source_table, code, discovered_by, ingestion_file_id, claim_external_id)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := q.Exec(ctx, auditSQL, table, code, discoveredBy, ingestionFileID, claimExternalID); err != nil {
		return nil, fmt.Errorf("audit discovery %s %q: %w", table, code, err)
	}
	r.log.Info().Str("table", table).Str("code", code).Msg("auto-registered reference code")

	return &id, nil
}

func (r *Resolver) Payer(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "payer", code, fileID, claimID, "submission")
}

func (r *Resolver) Provider(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "provider", code, fileID, claimID, "submission")
}

func (r *Resolver) Facility(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "facility", code, fileID, claimID, "submission")
}

func (r *Resolver) Clinician(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "clinician", code, fileID, claimID, "submission")
}

func (r *Resolver) ActivityCode(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "activity_code", code, fileID, claimID, "submission")
}

func (r *Resolver) DiagnosisCode(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "diagnosis_code", code, fileID, claimID, "submission")
}

func (r *Resolver) DenialCode(ctx context.Context, q Querier, code string, fileID int64, claimID string) (*int64, error) {
	return r.resolve(ctx, q, "denial_code", code, fileID, claimID, "remittance")
}
