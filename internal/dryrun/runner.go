// Package dryrun simulates trial executions of saved queries: it validates
// the query against its data source, applies parameters and the auto limit,
// and estimates how many bytes the query would scan.
package dryrun

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/trialrun/internal/config"
	"github.com/Iron-Ham/trialrun/internal/errors"
	"github.com/Iron-Ham/trialrun/internal/logging"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

type cacheEntry struct {
	result   *trialrun.Result
	storedAt time.Time
}

// Runner executes dry runs. One Runner is shared by every query in a process.
type Runner struct {
	cfg    config.RunnerConfig
	cache  *lru.Cache[string, cacheEntry]
	logger *logging.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(cfg config.RunnerConfig, logger *logging.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Runner{
		cfg:    cfg,
		cache:  cache,
		logger: logger.WithComponent("runner"),
		now:    time.Now,
	}, nil
}

// Submit starts a dry run of q and returns its job immediately.
func (r *Runner) Submit(q *Query, opts trialrun.RunOptions) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := newJob(uuid.NewString(), q.ID(), cancel, r.now())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(ctx, job, q, opts)
	}()
	return job
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// CachedResults returns the number of results available for max-age reuse.
func (r *Runner) CachedResults() int {
	return r.cache.Len()
}

func (r *Runner) execute(ctx context.Context, job *Job, q *Query, opts trialrun.RunOptions) {
	logger := r.logger.WithEntity(q.ID()).WithRun(job.ID())

	executed, err := r.prepare(q)
	if err != nil {
		logger.Info("dry run rejected", "error", err)
		job.finish(trialrun.StatusFailed, nil, withContext(err, q, job), r.now())
		return
	}

	ds := q.DataSource()
	key := ds.ID + "\x00" + executed
	if opts.MaxAge > 0 {
		if entry, ok := r.cache.Get(key); ok && r.now().Sub(entry.storedAt) < opts.MaxAge {
			res := *entry.result
			res.Query = q.QueryText()
			logger.Debug("reusing cached dry run", "result_id", res.ID, "age", r.now().Sub(entry.storedAt))
			job.finish(trialrun.StatusDone, &res, nil, r.now())
			return
		}
	}

	job.advance(trialrun.StatusProcessing, r.now())

	timer := time.NewTimer(r.cfg.Latency())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		logger.Info("dry run canceled")
		err := errors.NewRunError("Query execution was canceled.", errors.ErrRunCanceled).WithRetryable(true)
		job.finish(trialrun.StatusCancelled, nil, withContext(err, q, job), r.now())
		return
	case <-timer.C:
	}

	now := r.now()
	res := &trialrun.Result{
		ID:             uuid.NewString(),
		Query:          q.QueryText(),
		Executed:       executed,
		DataSourceID:   ds.ID,
		BytesProcessed: EstimateBytes(executed, ds, r.cfg.UnknownTableBytes),
		RetrievedAt:    now,
	}
	r.cache.Add(key, cacheEntry{result: res, storedAt: now})

	logger.Info("dry run finished", "result_id", res.ID, "bytes_processed", res.BytesProcessed)
	job.finish(trialrun.StatusDone, res, nil, now)
}

// prepare validates q and returns the text that would be executed.
func (r *Runner) prepare(q *Query) (string, error) {
	ds := q.DataSource()
	if ds == nil {
		return "", errors.NewRunError("Target data source not available.", errors.ErrDataSourceUnavailable)
	}

	if ds.Paused {
		msg := fmt.Sprintf("%s is paused. Please try later.", ds.Name)
		if ds.PauseReason != "" {
			msg = fmt.Sprintf("%s is paused (%s). Please try later.", ds.Name, ds.PauseReason)
		}
		return "", errors.NewRunError(msg, errors.ErrDataSourcePaused).WithRetryable(true)
	}

	text := ApplyParameters(q.QueryText(), q.Parameters())
	if q.ApplyAutoLimit() {
		text = ApplyAutoLimit(text, r.cfg.AutoLimit)
	}

	if missing := q.MissingParameters(); len(missing) > 0 {
		msg := fmt.Sprintf("Missing parameter value for: %s", strings.Join(missing, ", "))
		return "", errors.NewRunError(msg, errors.ErrMissingParameters).WithSeverity(errors.SeverityWarning)
	}
	return text, nil
}

func withContext(err error, q *Query, job *Job) error {
	var runErr *errors.RunError
	if errors.As(err, &runErr) {
		return runErr.WithEntity(q.ID()).WithRun(job.ID())
	}
	return err
}
