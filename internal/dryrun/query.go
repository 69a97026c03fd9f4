package dryrun

import (
	"maps"
	"sync"

	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

// DataSource is where a query runs.
type DataSource struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Paused      bool   `yaml:"paused"`
	PauseReason string `yaml:"pause_reason"`
	// Tables maps table names to their size in bytes.
	Tables map[string]int64 `yaml:"tables"`
}

// Parameter is a named query parameter. An empty Value counts as missing.
type Parameter struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// QuerySpec describes a saved query.
type QuerySpec struct {
	ID             string
	Name           string
	Text           string
	DataSource     *DataSource
	Parameters     []Parameter
	ApplyAutoLimit bool
	LatestDataID   string
}

// Query is a saved query that can produce trial runs. It implements
// trialrun.Entity.
type Query struct {
	spec   QuerySpec
	runner *Runner

	mu           sync.Mutex
	latestDataID string
	dryRunResult *trialrun.Result
}

var _ trialrun.Entity = (*Query)(nil)

// NewQuery creates a Query whose runs are executed by runner.
func NewQuery(spec QuerySpec, runner *Runner) *Query {
	spec.Parameters = append([]Parameter(nil), spec.Parameters...)
	if spec.DataSource != nil {
		ds := *spec.DataSource
		ds.Tables = maps.Clone(ds.Tables)
		spec.DataSource = &ds
	}
	return &Query{
		spec:         spec,
		runner:       runner,
		latestDataID: spec.LatestDataID,
	}
}

func (q *Query) ID() string        { return q.spec.ID }
func (q *Query) Name() string      { return q.spec.Name }
func (q *Query) QueryText() string { return q.spec.Text }

// DataSource returns the query's data source, or nil.
func (q *Query) DataSource() *DataSource { return q.spec.DataSource }

// Parameters returns a copy of the query's parameters.
func (q *Query) Parameters() []Parameter {
	return append([]Parameter(nil), q.spec.Parameters...)
}

// ApplyAutoLimit reports whether runs append the configured LIMIT.
func (q *Query) ApplyAutoLimit() bool { return q.spec.ApplyAutoLimit }

// HasResult reports whether a result has been attached to the query.
func (q *Query) HasResult() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latestDataID != ""
}

// RequiresParameters reports whether the query declares any parameters.
func (q *Query) RequiresParameters() bool {
	return len(q.spec.Parameters) > 0
}

// MissingParameters returns the names of parameters without a value, in
// declaration order.
func (q *Query) MissingParameters() []string {
	var missing []string
	for _, p := range q.spec.Parameters {
		if p.Value == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// ProduceRun submits the query to its runner.
func (q *Query) ProduceRun(opts trialrun.RunOptions) trialrun.RunHandle {
	return q.runner.Submit(q, opts)
}

// AttachResult records r as the query's latest result.
func (q *Query) AttachResult(latestDataID string, r *trialrun.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.latestDataID = latestDataID
	q.dryRunResult = r
}

// LatestDataID returns the ID of the latest attached result.
func (q *Query) LatestDataID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latestDataID
}

// DryRunResult returns the latest attached result, or nil.
func (q *Query) DryRunResult() *trialrun.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dryRunResult
}
