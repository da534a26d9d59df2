// Package ingesterr records structured per-file/per-claim/per-stage
// failures into claims.ingestion_error so a failed object is diagnosable
// without grepping logs, and so verify can report discrepancies against a
// durable record rather than an in-memory counter.
package ingesterr

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stage names the pipeline phase that produced a failure.
type Stage string

const (
	StageFetch    Stage = "FETCH"
	StageStage    Stage = "STAGE"
	StageParse    Stage = "PARSE"
	StageValidate Stage = "VALIDATE"
	StagePersist  Stage = "PERSIST"
	StageVerify   Stage = "VERIFY"
	StageAck      Stage = "ACK"
)

// Entry is one ingestion_error row.
type Entry struct {
	IngestionFileID int64
	Stage           Stage
	ObjectType      string
	ObjectKey       string
	Code            string
	Message         string
	Retryable       bool
}

// Recorder persists Entry values, either transactionally (via Querier,
// typically a pgx.Tx passed in from the owning WithTx block) or directly
// against the pool for failures that occur outside any transaction (parse,
// fetch).
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

const insertSQL = `
INSERT INTO claims.ingestion_error
	(ingestion_file_id, stage, object_type, object_key, code, message, retryable)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Record writes e against the Recorder's own pool, independent of any
// in-flight transaction. Used for fetch/parse failures that precede a
// claim-scoped transaction ever being opened.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	return RecordWith(ctx, r.pool, e)
}

// RecordWith writes e using the given Querier, so a caller already inside
// a claim's transaction can record the failure as part of that same
// transaction: a persist failure and its error record commit or roll back
// together.
func RecordWith(ctx context.Context, q Querier, e Entry) error {
	_, err := q.Exec(ctx, insertSQL,
		e.IngestionFileID, string(e.Stage), e.ObjectType, e.ObjectKey, e.Code, e.Message, e.Retryable)
	return err
}
