// Package orchestrator is the bounded work queue and worker pool that
// drives every inbound file through Parse -> Validate -> Persist ->
// Verify -> Ack. Unlike a metrics pipeline that can drop an event under
// load, a claims file must never be silently dropped: Submit returns
// ErrQueueFull so the caller (a fetch scheduler or localfs watcher) can
// decide how to handle backpressure instead of losing the file.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ack"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dhposoap"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ingesterr"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/persist"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/validate"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/verify"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/xmlparse"
)

// ErrQueueFull is returned by Submit when the bounded queue has no room.
var ErrQueueFull = errors.New("orchestrator: queue full")

// WorkItem is one file to run through the pipeline.
type WorkItem struct {
	File         model.IngestionFile
	Raw          []byte
	Source       ack.Source
	Credentials  dhposoap.Credentials // zero value for localfs-sourced items
}

// Orchestrator owns the bounded queue and the worker pool draining it.
type Orchestrator struct {
	queue      chan WorkItem
	sem        *semaphore.Weighted
	stageTimeout time.Duration
	shutdownDrain time.Duration

	persister *persist.Persister
	verifier  *verify.Verifier
	acker     *ack.Acknowledger
	errs      *ingesterr.Recorder
	log       zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(
	capacity, workers int,
	stageTimeout, shutdownDrain time.Duration,
	persister *persist.Persister,
	verifier *verify.Verifier,
	acker *ack.Acknowledger,
	errs *ingesterr.Recorder,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		queue:         make(chan WorkItem, capacity),
		sem:           semaphore.NewWeighted(int64(workers)),
		stageTimeout:  stageTimeout,
		shutdownDrain: shutdownDrain,
		persister:     persister,
		verifier:      verifier,
		acker:         acker,
		errs:          errs,
		log:           log.With().Str("component", "orchestrator").Logger(),
	}
}

// Start launches the queue-draining dispatcher.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go o.dispatch(ctx)
}

// Submit enqueues item without blocking; returns ErrQueueFull if the
// bounded queue has no room, leaving the caller free to retry, hold the
// file for a later sweep, or surface backpressure upstream.
func (o *Orchestrator) Submit(item WorkItem) error {
	select {
	case o.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting new dispatch cycles and waits up to
// shutdownDrain for in-flight items to finish before returning.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.shutdownDrain):
		o.log.Warn().Msg("shutdown drain deadline exceeded, workers may still be in flight")
	}
}

func (o *Orchestrator) dispatch(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-o.queue:
			if !ok {
				return
			}
			if err := o.sem.Acquire(ctx, 1); err != nil {
				return
			}
			o.wg.Add(1)
			go func(item WorkItem) {
				defer o.wg.Done()
				defer o.sem.Release(1)
				o.process(ctx, item)
			}(item)
		}
	}
}

// process runs one file through the full pipeline, recording failures at
// whichever stage they occur and never letting one bad file take down the
// dispatcher goroutine.
func (o *Orchestrator) process(ctx context.Context, item WorkItem) {
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	log := o.log.With().Str("file_id", item.File.FileID).Logger()

	switch item.File.RootType {
	case model.RootSubmission:
		o.processSubmission(stageCtx, item, log)
	case model.RootRemittance:
		o.processRemittance(stageCtx, item, log)
	default:
		log.Error().Str("root_type", string(item.File.RootType)).Msg("unknown root type, dropping file")
	}
}

func (o *Orchestrator) processSubmission(ctx context.Context, item WorkItem, log zerolog.Logger) {
	doc, err := xmlparse.ParseSubmission(item.Raw)
	if err != nil {
		o.recordParseFailure(ctx, item.File.ID, err)
		log.Error().Err(err).Msg("parse submission failed")
		return
	}
	if failures := validate.Submission(doc); len(failures) > 0 {
		o.recordValidationFailures(ctx, item.File.ID, failures)
		log.Warn().Int("failures", len(failures)).Msg("submission validation failures recorded, persisting all parsed claims")
	}

	if err := o.persister.UpdateFileHeader(ctx, item.File.ID, doc.Header.RecordCount, doc.Header.TransactionDate); err != nil {
		log.Error().Err(err).Msg("backfill ingestion_file header failed")
	}
	item.File.DeclaredRecordCount = doc.Header.RecordCount

	result, err := o.persister.Submission(ctx, item.File, doc)
	if err != nil {
		log.Error().Err(err).Msg("persist submission root failed")
		return
	}

	report, err := o.verifier.VerifySubmission(ctx, item.File, result.SubmissionID)
	if err != nil {
		log.Error().Err(err).Msg("verify submission failed")
		return
	}
	if !report.OK {
		log.Warn().Interface("discrepancies", report.Discrepancies).Msg("submission verify found discrepancies, withholding ack")
		return
	}

	if err := o.acker.Ack(ctx, item.Source, item.Credentials, item.File.FileID); err != nil {
		log.Error().Err(err).Msg("ack submission file failed")
	}
}

func (o *Orchestrator) processRemittance(ctx context.Context, item WorkItem, log zerolog.Logger) {
	doc, err := xmlparse.ParseRemittance(item.Raw)
	if err != nil {
		o.recordParseFailure(ctx, item.File.ID, err)
		log.Error().Err(err).Msg("parse remittance failed")
		return
	}
	if failures := validate.Remittance(doc); len(failures) > 0 {
		o.recordValidationFailures(ctx, item.File.ID, failures)
		log.Warn().Int("failures", len(failures)).Msg("remittance validation failures recorded, persisting all parsed claims")
	}

	if err := o.persister.UpdateFileHeader(ctx, item.File.ID, doc.Header.RecordCount, doc.Header.TransactionDate); err != nil {
		log.Error().Err(err).Msg("backfill ingestion_file header failed")
	}
	item.File.DeclaredRecordCount = doc.Header.RecordCount

	result, err := o.persister.Remittance(ctx, item.File, doc)
	if err != nil {
		log.Error().Err(err).Msg("persist remittance root failed")
		return
	}

	report, err := o.verifier.VerifyRemittance(ctx, item.File, result.RemittanceID)
	if err != nil {
		log.Error().Err(err).Msg("verify remittance failed")
		return
	}
	if !report.OK {
		log.Warn().Interface("discrepancies", report.Discrepancies).Msg("remittance verify found discrepancies, withholding ack")
		return
	}

	if err := o.acker.Ack(ctx, item.Source, item.Credentials, item.File.FileID); err != nil {
		log.Error().Err(err).Msg("ack remittance file failed")
	}
}

func (o *Orchestrator) recordParseFailure(ctx context.Context, fileID int64, err error) {
	var pe *xmlparse.ParseException
	if errors.As(err, &pe) {
		_ = o.errs.Record(ctx, ingesterr.Entry{
			IngestionFileID: fileID, Stage: ingesterr.StageParse,
			ObjectType: pe.ObjectType, ObjectKey: pe.ObjectKey, Code: pe.Code, Message: pe.Error(),
		})
		return
	}
	_ = o.errs.Record(ctx, ingesterr.Entry{
		IngestionFileID: fileID, Stage: ingesterr.StageParse,
		ObjectType: "File", Code: "E_PARSE", Message: err.Error(),
	})
}

func (o *Orchestrator) recordValidationFailures(ctx context.Context, fileID int64, failures []validate.Failure) {
	for _, f := range failures {
		_ = o.errs.Record(ctx, ingesterr.Entry{
			IngestionFileID: fileID, Stage: ingesterr.StageValidate,
			ObjectType: f.ObjectType, ObjectKey: f.ObjectKey,
			Code: "E_VALIDATE_" + f.Field, Message: fmt.Sprintf("%s: %s", f.Field, f.Message),
		})
	}
}
