package worker

import (
	"context"
	"log/slog"
	"time"

	"pulse/config"
	"pulse/internal/delivery"
	"pulse/internal/usecase"

	"go.uber.org/fx"
)

// sweeper periodically removes expired sessions, refresh token records and
// revocation entries. Expired rows are inert before the sweep runs; this only
// bounds table growth.
type sweeper struct {
	interval  time.Duration
	logger    *slog.Logger
	sessionUC usecase.SessionUsecase
	done      chan struct{}
}

// SweeperParams holds dependencies for the maintenance sweeper
type SweeperParams struct {
	fx.In

	Lc        fx.Lifecycle
	Cfg       *config.Config
	Logger    *slog.Logger
	SessionUC usecase.SessionUsecase
}

// NewSweeper creates the background sweeper delivery.
func NewSweeper(params SweeperParams) delivery.Delivery {
	s := &sweeper{
		interval:  params.Cfg.Maintenance.SweepInterval,
		logger:    params.Logger,
		sessionUC: params.SessionUC,
		done:      make(chan struct{}),
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			close(s.done)

			return nil
		},
	})

	return s
}

// Serve runs the sweep loop until shutdown.
func (s *sweeper) Serve(ctx context.Context) error {
	s.logger.Info("Starting maintenance sweeper", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			s.logger.Info("Stopping maintenance sweeper")

			return nil
		case <-ticker.C:
			if err := s.sessionUC.CleanupExpired(ctx); err != nil {
				s.logger.Error("Sweep failed", slog.Any("error", err))

				continue
			}

			s.logger.Debug("Sweep completed")
		}
	}
}
