// internal/ingest/ingest.go
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github-account-mirror/internal/errors"
	"github-account-mirror/internal/model"
)

// Fetcher retrieves one account's profile and repository list from the
// remote API.
type Fetcher interface {
	GetAccount(ctx context.Context, handle string) (*model.Account, error)
	ListRepositories(ctx context.Context, handle string) ([]model.Repository, error)
}

// Writer persists mirrored rows into the destination store.
type Writer interface {
	UpsertAccount(ctx context.Context, acct *model.Account) error
	UpsertRepositories(ctx context.Context, repos []model.Repository, ownerID int64) (int, error)
}

// SchemaManager provisions the destination tables before any writes occur.
type SchemaManager interface {
	Ensure(ctx context.Context) error
}

// Ingestor drives the pipeline: schema step once, then fetch, map and write
// per configured account, with failures isolated per account.
type Ingestor struct {
	schema      SchemaManager
	fetcher     Fetcher
	store       Writer
	logger      *slog.Logger
	handles     []string
	interval    time.Duration
	concurrency int

	trigger chan struct{}

	mu      sync.Mutex
	lastRun *model.RunSummary
}

// New creates an Ingestor. concurrency 1 processes the handles strictly in
// order, one at a time; higher values process independent accounts in
// parallel while keeping each account's own account-then-repositories order.
func New(schema SchemaManager, fetcher Fetcher, store Writer, logger *slog.Logger, handles []string, interval time.Duration, concurrency int) *Ingestor {
	return &Ingestor{
		schema:      schema,
		fetcher:     fetcher,
		store:       store,
		logger:      logger,
		handles:     handles,
		interval:    interval,
		concurrency: concurrency,
		trigger:     make(chan struct{}, 1),
	}
}

// Start runs one ingestion immediately, then on every interval tick and every
// manual trigger, until ctx is cancelled.
func (s *Ingestor) Start(ctx context.Context) {
	s.logger.Info("Starting ingestor", "interval", s.interval.String(), "concurrency", s.concurrency, "accounts", len(s.handles))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAndLog(ctx)

	for {
		select {
		case <-ticker.C:
			s.runAndLog(ctx)
		case <-s.trigger:
			s.runAndLog(ctx)
		case <-ctx.Done():
			s.logger.Info("Ingestor shutting down", "reason", ctx.Err())
			return
		}
	}
}

// TriggerNow schedules an extra run. A run already pending coalesces with it.
func (s *Ingestor) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// LastRun returns the summary of the most recently finished run, or nil if
// none has finished yet.
func (s *Ingestor) LastRun() *model.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Ingestor) runAndLog(ctx context.Context) {
	if _, err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Ingestion run aborted", "error", err)
	}
}

// Run executes one full ingestion pass. The returned error is non-nil only
// for fatal outcomes: a failed schema step (nothing attempted) or a lost
// destination connection mid-run. Per-account failures are recorded in the
// summary and do not fail the run.
func (s *Ingestor) Run(ctx context.Context) (*model.RunSummary, error) {
	started := time.Now()
	s.logger.Info("Starting ingestion run")

	if err := s.schema.Ensure(ctx); err != nil {
		return nil, err
	}

	results := make([]model.AccountResult, len(s.handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, handle := range s.handles {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = model.AccountResult{Handle: handle, Err: gctx.Err()}
				return nil
			}
			repoCount, err := s.ingestAccount(gctx, handle)
			results[i] = model.AccountResult{Handle: handle, RepoCount: repoCount, Err: err}
			if err != nil && apperrors.IsFatal(err) {
				// A lost store connection fails every later write too.
				return err
			}
			return nil
		})
	}

	fatalErr := g.Wait()

	summary := s.summarize(started, results)
	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()

	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, nil
}

// ingestAccount processes a single account: profile first, then its
// repositories, so the foreign key from repositories to accounts always
// holds. Returns the number of repositories fetched for the summary.
func (s *Ingestor) ingestAccount(ctx context.Context, handle string) (int, error) {
	logger := s.logger.With("handle", handle)
	logger.Info("Ingesting account")

	acct, err := s.fetcher.GetAccount(ctx, handle)
	if err != nil {
		return 0, err
	}

	if err := s.store.UpsertAccount(ctx, acct); err != nil {
		return 0, attribute(handle, err)
	}

	repos, err := s.fetcher.ListRepositories(ctx, handle)
	if err != nil {
		return 0, err
	}

	written, err := s.store.UpsertRepositories(ctx, repos, acct.ID)
	if err != nil {
		return 0, attribute(handle, err)
	}

	logger.Info("Account ingested", "account_id", acct.ID, "repos_fetched", len(repos), "repos_written", written)
	return len(repos), nil
}

// summarize produces the end-of-run report and the per-account log lines.
func (s *Ingestor) summarize(started time.Time, results []model.AccountResult) *model.RunSummary {
	summary := &model.RunSummary{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Results:    results,
	}

	for i, res := range results {
		if res.Succeeded() {
			summary.Succeeded++
			s.logger.Info("Account ingested successfully", "handle", res.Handle, "repos", res.RepoCount)
		} else {
			summary.Failed++
			summary.Results[i].Error = res.Err.Error()
			s.logger.Error("Account ingestion failed", "handle", res.Handle, "error", res.Err)
		}
	}

	s.logger.Info("Ingestion run finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String(),
	)
	return summary
}

// attribute stamps the failing account's handle onto store errors that carry
// one.
func attribute(handle string, err error) error {
	var pErr *apperrors.PersistenceError
	if errors.As(err, &pErr) && pErr.Handle == "" {
		pErr.Handle = handle
	}
	return err
}
