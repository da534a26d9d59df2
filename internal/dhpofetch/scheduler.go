package dhpofetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/ame"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/concurrency"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dhposoap"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/toggle"
)

// DiscoveredFile is handed to the orchestrator for every file a poll cycle
// finds that has not already been claimed by another facility/cycle.
type DiscoveredFile struct {
	FacilityCode string
	FileID       string
	FileName     string
}

// Handler is invoked once per DiscoveredFile; the orchestrator supplies
// this to enqueue the corresponding download+ingest work item.
type Handler func(ctx context.Context, f DiscoveredFile)

// Scheduler runs the delta-poll and search-poll ticker loops across every
// active DHPO facility. Each cycle polls the facilities concurrently and
// waits for all of them, so a slow facility delays that loop's next cycle.
type Scheduler struct {
	pool         *pgxpool.Pool
	soap         *dhposoap.Client
	cipher       *ame.Cipher
	registry     *FileRegistry
	singleflight *concurrency.KeyedMutex
	toggles      *toggle.Store
	handler      Handler
	log          zerolog.Logger

	deltaPeriod  time.Duration
	searchPeriod time.Duration
	searchWindow time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	pool *pgxpool.Pool,
	soap *dhposoap.Client,
	cipher *ame.Cipher,
	registry *FileRegistry,
	toggles *toggle.Store,
	handler Handler,
	deltaPeriod, searchPeriod, searchWindow time.Duration,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		pool:         pool,
		soap:         soap,
		cipher:       cipher,
		registry:     registry,
		singleflight: concurrency.NewKeyedMutex(),
		toggles:      toggles,
		handler:      handler,
		deltaPeriod:  deltaPeriod,
		searchPeriod: searchPeriod,
		searchWindow: searchWindow,
		log:          log.With().Str("component", "dhpofetch").Logger(),
		done:         make(chan struct{}),
	}
}

// Start launches the delta and search ticker loops in the background.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx, "delta", s.deltaPeriod, s.runDeltaCycle)
	go s.loop(ctx, "search", s.searchPeriod, s.runSearchCycle)
}

// Stop cancels both loops and returns at once; it does not wait for an
// in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, period time.Duration, cycle func(context.Context)) {
	s.log.Info().Str("loop", name).Dur("period", period).Msg("starting dhpo poll loop")
	cycle(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

func (s *Scheduler) runDeltaCycle(ctx context.Context) {
	if !s.toggles.Enabled(ctx, "dhpo.client.getNewEnabled") {
		return
	}
	facilities, err := s.loadFacilities(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("load facility credentials for delta poll")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, creds := range facilities {
		creds := creds
		g.Go(func() error {
			s.pollOneDelta(gctx, creds)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) pollOneDelta(ctx context.Context, creds dhposoap.Credentials) {
	unlock, ok := s.singleflight.TryLock(creds.FacilityCode)
	if !ok {
		s.log.Debug().Str("facility", creds.FacilityCode).Msg("delta poll already in flight, skipping tick")
		return
	}
	defer unlock()

	result, err := s.soap.GetNewTransactions(ctx, creds)
	if err != nil {
		s.log.Error().Err(err).Str("facility", creds.FacilityCode).Msg("GetNewTransactions failed")
		return
	}
	if !result.Code.Success() {
		s.log.Warn().Str("facility", creds.FacilityCode).Int("code", int(result.Code)).Msg("GetNewTransactions returned non-success code")
		return
	}
	s.dispatchNewFiles(ctx, creds.FacilityCode, result.Files)
}

func (s *Scheduler) runSearchCycle(ctx context.Context) {
	if !s.toggles.Enabled(ctx, "dhpo.search.enabled") {
		return
	}
	facilities, err := s.loadFacilities(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("load facility credentials for search poll")
		return
	}

	to := time.Now()
	from := to.Add(-s.searchWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, creds := range facilities {
		creds := creds
		g.Go(func() error {
			s.pollOneSearch(gctx, creds, from, to)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) pollOneSearch(ctx context.Context, creds dhposoap.Credentials, from, to time.Time) {
	unlock, ok := s.singleflight.TryLock(creds.FacilityCode)
	if !ok {
		return
	}
	defer unlock()

	result, err := s.soap.SearchTransactions(ctx, creds, from, to)
	if err != nil {
		s.log.Error().Err(err).Str("facility", creds.FacilityCode).Msg("SearchTransactions failed")
		return
	}
	if !result.Code.Success() {
		return
	}
	s.dispatchNewFiles(ctx, creds.FacilityCode, result.Files)
}

func (s *Scheduler) dispatchNewFiles(ctx context.Context, facilityCode string, files []dhposoap.TransactionFileRef) {
	for _, f := range files {
		claimed, err := s.registry.Register(ctx, f.FileID, facilityCode)
		if err != nil {
			s.log.Error().Err(err).Str("file_id", f.FileID).Msg("register discovered file")
			continue
		}
		if !claimed {
			continue
		}
		s.handler(ctx, DiscoveredFile{FacilityCode: facilityCode, FileID: f.FileID, FileName: f.FileName})
	}
}

// loadFacilities reads every active facility's DHPO credentials and
// decrypts them via ame, so a poll cycle never holds plaintext longer than
// one call's lifetime.
func (s *Scheduler) loadFacilities(ctx context.Context) ([]dhposoap.Credentials, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT facility_code, username_blob, password_blob, crypto_metadata
		FROM claims_ref.facility_dhpo_config
		WHERE active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dhposoap.Credentials
	for rows.Next() {
		var facilityCode string
		var usernameBlob, passwordBlob, cryptoMeta []byte
		if err := rows.Scan(&facilityCode, &usernameBlob, &passwordBlob, &cryptoMeta); err != nil {
			return nil, err
		}
		var meta ame.CryptoMetadata
		if err := json.Unmarshal(cryptoMeta, &meta); err != nil {
			s.log.Error().Err(err).Str("facility", facilityCode).Msg("decode crypto metadata")
			continue
		}
		username, err := s.cipher.Decrypt(facilityCode, string(usernameBlob), meta)
		if err != nil {
			s.log.Error().Err(err).Str("facility", facilityCode).Msg("decrypt DHPO username")
			continue
		}
		password, err := s.cipher.Decrypt(facilityCode, string(passwordBlob), meta)
		if err != nil {
			s.log.Error().Err(err).Str("facility", facilityCode).Msg("decrypt DHPO password")
			continue
		}
		out = append(out, dhposoap.Credentials{
			FacilityCode: facilityCode,
			Username:     string(username),
			Password:     string(password),
		})
	}
	return out, rows.Err()
}
