package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
)

// DatasetBuilder produces a fresh dataset.
type DatasetBuilder interface {
	Build(ctx context.Context) (*domain.Dataset, error)
}

// SnapshotLoader delivers a freshly built snapshot to a sink.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, snap Snapshot) error
}

// Snapshot is an immutable dataset together with when it was built.
type Snapshot struct {
	Dataset  *domain.Dataset
	BuiltAt  time.Time
	Duration time.Duration
}

// Refresher holds the current snapshot and rebuilds it on demand. At most
// one rebuild runs at a time; callers arriving while one is in flight wait
// for it and share its result. A failed rebuild leaves the previous
// snapshot in place.
type Refresher struct {
	builder DatasetBuilder
	loader  SnapshotLoader
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	group   singleflight.Group
	current atomic.Pointer[Snapshot]
}

// NewRefresher creates a Refresher. Pass a nil loader to disable publishing.
func NewRefresher(b DatasetBuilder, loader SnapshotLoader, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{
		builder: b,
		loader:  loader,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Current returns the latest snapshot, or nil before the first successful build.
func (r *Refresher) Current() *Snapshot {
	return r.current.Load()
}

// CheckReadiness returns nil once a dataset has been built.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if r.current.Load() == nil {
		return errors.New("dataset has not been built yet")
	}
	return nil
}

// Refresh rebuilds the dataset, joining a rebuild already in flight if there
// is one. Cancelling ctx stops the wait, not the shared rebuild.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	buildCtx := context.WithoutCancel(ctx)
	var leader atomic.Bool
	ch := r.group.DoChan("dataset", func() (any, error) {
		leader.Store(true)
		return r.rebuild(buildCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		// Shared is also set for the caller that started the build.
		if res.Shared && !leader.Load() {
			r.metrics.RefreshCoalesced.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (r *Refresher) rebuild(ctx context.Context) (*Snapshot, error) {
	start := r.clock.Now()
	ds, err := r.builder.Build(ctx)
	if err != nil {
		r.logger.Error("dataset rebuild failed, keeping previous snapshot", "error", err)
		return nil, err
	}

	snap := &Snapshot{
		Dataset:  ds,
		BuiltAt:  r.clock.Now(),
		Duration: r.clock.Since(start),
	}
	r.current.Store(snap)

	r.metrics.DatasetPlaces.Set(float64(len(ds.Places)))
	r.metrics.DatasetDates.Set(float64(len(ds.Dates)))
	r.metrics.LastBuildUnixTime.Set(float64(snap.BuiltAt.Unix()))

	if r.loader != nil {
		if err := r.loader.LoadSnapshot(ctx, *snap); err != nil {
			r.metrics.PublishErrors.Inc()
			r.logger.Warn("publish dataset failed", "error", err)
		}
	}
	return snap, nil
}
