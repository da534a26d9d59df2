// Package ack sends the post-verify DHPO acknowledgment
// (SetTransactionDownloaded) for files retrieved over SOAP, gated by the
// dhpo.setDownloaded.enabled toggle, and is a deliberate no-op for files
// that arrived via localfs (there is no upstream to acknowledge to).
package ack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dhposoap"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/toggle"
)

// Source identifies which fetch path produced a file.
type Source string

const (
	SourceDHPO    Source = "DHPO"
	SourceLocalFS Source = "LOCALFS"
)

// Acknowledger performs the ack step appropriate to a file's source.
type Acknowledger struct {
	soap    *dhposoap.Client
	toggles *toggle.Store
	log     zerolog.Logger
}

func New(soap *dhposoap.Client, toggles *toggle.Store, log zerolog.Logger) *Acknowledger {
	return &Acknowledger{soap: soap, toggles: toggles, log: log.With().Str("component", "ack").Logger()}
}

// Ack acknowledges fileID for a DHPO-sourced file, returning nil without
// calling DHPO if the source is localfs or the ack toggle is off.
func (a *Acknowledger) Ack(ctx context.Context, source Source, creds dhposoap.Credentials, fileID string) error {
	if source != SourceDHPO {
		return nil
	}
	if !a.toggles.Enabled(ctx, "dhpo.setDownloaded.enabled") {
		a.log.Debug().Str("file_id", fileID).Msg("ack toggle disabled, skipping SetTransactionDownloaded")
		return nil
	}

	code, err := a.soap.SetTransactionDownloaded(ctx, creds, fileID)
	if err != nil {
		return fmt.Errorf("ack file %q: %w", fileID, err)
	}
	if !code.Success() {
		return fmt.Errorf("ack file %q: dhpo returned code %d", fileID, int(code))
	}
	return nil
}
