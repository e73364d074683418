package runner

import (
	"context"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
	"github.com/signalnine/ripedome/internal/store"
)

// Ledger is a Sink that records every trial verdict in the run's store.
type Ledger struct {
	Store *store.Store
	RunID string
}

func (l *Ledger) BeginMode(matrix.Mode) error { return nil }

func (l *Ledger) Trial(ctx context.Context, seq int, tr *result.TrialResult) error {
	return l.Store.WriteTrial(ctx, l.RunID, seq, tr)
}

func (l *Ledger) EndMode(*result.ModeAggregate) error { return nil }

func (l *Ledger) AbortMode(matrix.Mode) {}
