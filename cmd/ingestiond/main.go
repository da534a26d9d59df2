// Command ingestiond wires together the claims ingestion pipeline: config,
// database pools, Redis, credential encryption, reference-data resolution,
// feature toggles, the orchestrator worker pool, and both fetch adapters
// (local filesystem drop and DHPO SOAP polling), then runs until an OS
// signal requests shutdown.
package main

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ack"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/adminhttp"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ame"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dbx"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dhpofetch"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dhposoap"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ingesterr"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/localfs"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/logging"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/orchestrator"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/persist"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/redisx"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/refdata"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/staging"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/toggle"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/verify"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("claims ingestion service starting")

	ctx := context.Background()

	pools, err := dbx.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database pools")
	}
	defer pools.Close()

	redisClient, err := redisx.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init redis client")
	}
	if err := redisx.Ping(redisClient); err != nil {
		log.Warn().Err(err).Msg("redis ping failed at startup — continuing, toggles will fall back to postgres")
	}

	cipher, err := ame.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init credential cipher")
	}

	rd := refdata.New(pools.Ingestion, cfg, log)
	toggles := toggle.New(pools.Ingestion, redisClient)
	errs := ingesterr.NewRecorder(pools.Ingestion)
	stager := staging.New(cfg)

	persister := persist.New(pools, rd, errs, log)
	verifier := verify.New(pools.Ingestion)
	soapClient := dhposoap.NewClient(cfg.DHPOBaseURL, cfg.DHPOHTTPTimeout, cfg.DHPOMaxRetries, cfg.DHPORetryBaseDelay, log)
	defer soapClient.Close()
	acker := ack.New(soapClient, toggles, log)

	orc := orchestrator.New(
		cfg.QueueCapacity, cfg.Workers, cfg.StageTimeout, cfg.ShutdownDrain,
		persister, verifier, acker, errs, log)
	orc.Start()
	defer orc.Stop()

	registerFile := func(ctx context.Context, rootType model.RootType, fileName string, raw []byte, declaredCount int) (model.IngestionFile, error) {
		var id int64
		err := pools.Ingestion.QueryRow(ctx, `
			INSERT INTO claims.ingestion_file (file_id, file_name, root_type, transaction_date, declared_record_count)
			VALUES ($1, $2, $3, now(), $4)
			ON CONFLICT (file_id) DO UPDATE SET file_name = EXCLUDED.file_name
			RETURNING id`, fileName, fileName, string(rootType), declaredCount).Scan(&id)
		if err != nil {
			return model.IngestionFile{}, err
		}
		return model.IngestionFile{ID: id, FileID: fileName, FileName: fileName, RootType: rootType, DeclaredRecordCount: declaredCount}, nil
	}

	localWatcher := localfs.New(cfg, func(ctx context.Context, f localfs.ClaimedFile) error {
		rootType := detectRootType(f.Bytes)
		file, err := registerFile(ctx, rootType, f.FileName, f.Bytes, 0)
		if err != nil {
			return err
		}
		return orc.Submit(orchestrator.WorkItem{File: file, Raw: f.Bytes, Source: ack.SourceLocalFS})
	}, log)
	if err := localWatcher.Start(); err != nil {
		log.Fatal().Err(err).Msg("start localfs watcher")
	}
	defer localWatcher.Stop()

	fileRegistry := dhpofetch.NewFileRegistry(redisClient)
	scheduler := dhpofetch.NewScheduler(pools.Ingestion, soapClient, cipher, fileRegistry, toggles,
		func(ctx context.Context, d dhpofetch.DiscoveredFile) {
			fetchStart := time.Now()
			code, raw, err := soapClient.DownloadTransactionFile(ctx, dhposoap.Credentials{FacilityCode: d.FacilityCode}, d.FileID)
			fetchLatency := time.Since(fetchStart)
			if err != nil || !code.Success() || raw == nil {
				log.Error().Err(err).Str("file_id", d.FileID).Int("code", int(code)).Msg("download DHPO file failed")
				return
			}

			decision := stager.Decide(int64(len(raw)), fetchLatency)
			if decision.Disk {
				if _, err := stager.WriteDisk(d.FileName, raw); err != nil {
					log.Error().Err(err).Str("file_id", d.FileID).Msg("stage DHPO file to disk")
					return
				}
			}

			rootType := detectRootType(raw)
			file, err := registerFile(ctx, rootType, d.FileName, raw, 0)
			if err != nil {
				log.Error().Err(err).Str("file_id", d.FileID).Msg("register DHPO file")
				return
			}
			if err := orc.Submit(orchestrator.WorkItem{File: file, Raw: raw, Source: ack.SourceDHPO}); err != nil {
				log.Error().Err(err).Str("file_id", d.FileID).Msg("submit DHPO file to orchestrator")
			}
		},
		cfg.DHPODeltaPeriod, cfg.DHPOSearchPeriod, cfg.DHPOSearchWindow, log)
	scheduler.Start()
	defer scheduler.Stop()

	admin := adminhttp.New(cfg.AdminAddr, pools, redisClient, toggles, log)
	admin.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	if err := admin.Stop(cfg.GracefulTimeout); err != nil {
		log.Error().Err(err).Msg("admin http shutdown failed")
	}
	log.Info().Msg("claims ingestion service stopped gracefully")
}

// detectRootType sniffs the inbound XML for its root element without a
// full parse, so the orchestrator knows which document shape to run
// before committing to ParseSubmission vs ParseRemittance.
func detectRootType(raw []byte) model.RootType {
	const maxSniff = 4096
	window := raw
	if len(window) > maxSniff {
		window = window[:maxSniff]
	}
	if bytes.Contains(window, []byte("<Remittance")) {
		return model.RootRemittance
	}
	return model.RootSubmission
}
