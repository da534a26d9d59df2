// Package dbx wraps pgxpool connection pools and the per-claim transaction
// helper used throughout the persister. Ingestion and admin/read paths get
// separate pools so a burst of report queries never starves pipeline
// writes.
package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// Pools bundles the two connection pools the service opens at startup.
type Pools struct {
	Ingestion *pgxpool.Pool
	Admin     *pgxpool.Pool
}

// Open creates the ingestion pool (and, if ADMIN_DATABASE_URL is set, a
// distinct admin pool; otherwise Admin is the ingestion pool itself, with
// the same connection limits).
func Open(ctx context.Context, cfg *config.Config) (*Pools, error) {
	ingestionCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	ingestionCfg.MaxConns = cfg.DBMaxConns
	ingestionCfg.MinConns = cfg.DBMinConns
	ingestionCfg.HealthCheckPeriod = 30 * time.Second

	ingestionPool, err := pgxpool.NewWithConfig(ctx, ingestionCfg)
	if err != nil {
		return nil, fmt.Errorf("open ingestion pool: %w", err)
	}

	adminPool := ingestionPool
	if cfg.AdminDatabaseURL != "" {
		adminCfg, err := pgxpool.ParseConfig(cfg.AdminDatabaseURL)
		if err != nil {
			ingestionPool.Close()
			return nil, fmt.Errorf("parse ADMIN_DATABASE_URL: %w", err)
		}
		adminCfg.MaxConns = 5
		adminPool, err = pgxpool.NewWithConfig(ctx, adminCfg)
		if err != nil {
			ingestionPool.Close()
			return nil, fmt.Errorf("open admin pool: %w", err)
		}
	}

	return &Pools{Ingestion: ingestionPool, Admin: adminPool}, nil
}

// Close releases both pools. Safe to call even if they alias each other.
func (p *Pools) Close() {
	if p.Admin != nil && p.Admin != p.Ingestion {
		p.Admin.Close()
	}
	if p.Ingestion != nil {
		p.Ingestion.Close()
	}
}

// Ping verifies both pools are reachable, used by the /readyz handler.
func (p *Pools) Ping(ctx context.Context) error {
	if err := p.Ingestion.Ping(ctx); err != nil {
		return fmt.Errorf("ingestion pool: %w", err)
	}
	if p.Admin != p.Ingestion {
		if err := p.Admin.Ping(ctx); err != nil {
			return fmt.Errorf("admin pool: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a single transaction against the ingestion pool,
// committing on success and rolling back on any error (including a panic,
// which is re-raised after rollback). This is the explicit replacement for
// annotation-driven @Transactional: the pipeline opens one transaction per
// claim for submission and per remittance claim for remittance, never per
// file.
func (p *Pools) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := p.Ingestion.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
