package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// WriteMeta describes who is writing and through which path.
type WriteMeta struct {
	Source Source
	Actor  string
}

// Coordinator is the single entry point for writing candidates to the store.
type Coordinator struct {
	store    Store
	strategy MergeStrategy
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

type Option func(*Coordinator)

func WithStrategy(s MergeStrategy) Option         { return func(c *Coordinator) { c.strategy = s } }
func WithClock(now func() time.Time) Option       { return func(c *Coordinator) { c.now = now } }
func WithIDGenerator(newID func() string) Option  { return func(c *Coordinator) { c.newID = newID } }
func WithCoordinatorLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		strategy: ReplaceAll,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Strategy reports the merge strategy applied on key conflict.
func (c *Coordinator) Strategy() MergeStrategy { return c.strategy }

// Upsert merges rows into the store in one batched call. A store failure is
// returned as *StoreError without retrying.
func (c *Coordinator) Upsert(ctx context.Context, rows []Candidate, meta WriteMeta) error {
	if len(rows) == 0 {
		return nil
	}
	now := c.now().UTC().Truncate(time.Second)
	batch := make([]CourseStatistic, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, CourseStatistic{
			Candidate: r,
			ID:        c.newID(),
			Source:    meta.Source,
			CreatedBy: meta.Actor,
			UpdatedBy: meta.Actor,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := c.store.UpsertStatistics(ctx, batch, c.strategy); err != nil {
		c.logger.ErrorContext(ctx, "statistics upsert failed",
			"rows", len(batch), "source", meta.Source, "error", err)
		return NewStoreError("upsert", err)
	}
	c.logger.InfoContext(ctx, "statistics upserted",
		"rows", len(batch), "source", meta.Source, "strategy", c.strategy.String(), "actor", meta.Actor)
	return nil
}

// Delete removes the row for k. ErrNotFound is returned unwrapped.
func (c *Coordinator) Delete(ctx context.Context, k Key) error {
	err := c.store.DeleteStatistic(ctx, k)
	switch {
	case err == nil:
		c.logger.InfoContext(ctx, "statistic deleted", "key", k.String())
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	default:
		return NewStoreError("delete", err)
	}
}
