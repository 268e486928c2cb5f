// Package janitor runs the lobby's periodic sweep: expiring pending
// games that outlived their join window and clients that went quiet
// too long. It is its own long-lived goroutine, supervised through an
// errgroup alongside the HTTP accept loop, so a panic or early exit
// propagates instead of silently stopping background cleanup.
package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Expirer is the subset of Coordinator the janitor needs. Defined
// here, not in lobby, so janitor stays a leaf package.
type Expirer interface {
	ExpirePending(now time.Time) (expiredClients, expiredGames []string)
}

// Janitor sweeps its Expirer once per Interval until its context is
// canceled.
type Janitor struct {
	Expirer  Expirer
	Interval time.Duration
	Logger   *slog.Logger
}

// New builds a Janitor with the standard one-second sweep interval.
func New(expirer Expirer, logger *slog.Logger) *Janitor {
	return &Janitor{Expirer: expirer, Interval: time.Second, Logger: logger}
}

// Run blocks, sweeping every Interval, until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	clients, games := j.Expirer.ExpirePending(time.Now())
	for _, id := range clients {
		j.Logger.Info("janitor: expired idle client", "client_id", id)
	}
	for _, id := range games {
		j.Logger.Info("janitor: expired pending game", "game_id", id)
	}
}
