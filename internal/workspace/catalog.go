// Package workspace loads the YAML catalog of data sources and saved queries
// that trial runs are produced from, and reloads it when the file changes.
package workspace

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/trialrun/internal/dryrun"
	"github.com/Iron-Ham/trialrun/internal/errors"
)

// QueryDef is a saved query as written in the workspace file.
type QueryDef struct {
	ID             string             `yaml:"id"`
	Name           string             `yaml:"name"`
	Text           string             `yaml:"text"`
	DataSource     string             `yaml:"data_source"`
	Parameters     []dryrun.Parameter `yaml:"parameters"`
	ApplyAutoLimit bool               `yaml:"apply_auto_limit"`
	LatestDataID   string             `yaml:"latest_data_id"`
}

// File is the on-disk layout of a workspace.
type File struct {
	DataSources []dryrun.DataSource `yaml:"data_sources"`
	Queries     []QueryDef          `yaml:"queries"`
}

// Catalog is a validated, read-only view of a workspace file.
type Catalog struct {
	path        string
	dataSources map[string]*dryrun.DataSource
	queries     []QueryDef
	byName      map[string]int
	byID        map[string]int
}

// Load reads and validates the workspace file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cat.path = path
	return cat, nil
}

// Parse validates raw workspace YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewValidationError("invalid workspace YAML").WithValue(err.Error())
	}

	cat := &Catalog{
		dataSources: make(map[string]*dryrun.DataSource, len(f.DataSources)),
		byName:      make(map[string]int, len(f.Queries)),
		byID:        make(map[string]int, len(f.Queries)),
	}

	for i := range f.DataSources {
		ds := f.DataSources[i]
		if ds.ID == "" {
			return nil, errors.NewValidationError("data source id is required").WithField(fmt.Sprintf("data_sources[%d].id", i))
		}
		if _, dup := cat.dataSources[ds.ID]; dup {
			return nil, errors.NewValidationError("duplicate data source id").WithField("data_sources.id").WithValue(ds.ID)
		}
		if ds.Name == "" {
			ds.Name = ds.ID
		}
		cat.dataSources[ds.ID] = &ds
	}

	for i, q := range f.Queries {
		field := fmt.Sprintf("queries[%d]", i)
		switch {
		case q.ID == "":
			return nil, errors.NewValidationError("query id is required").WithField(field + ".id")
		case q.Name == "":
			return nil, errors.NewValidationError("query name is required").WithField(field + ".name")
		case strings.TrimSpace(q.Text) == "":
			return nil, errors.NewValidationError("query text is required").WithField(field + ".text")
		}
		if _, dup := cat.byID[q.ID]; dup {
			return nil, errors.NewValidationError("duplicate query id").WithField(field + ".id").WithValue(q.ID)
		}
		if _, dup := cat.byName[q.Name]; dup {
			return nil, errors.NewValidationError("duplicate query name").WithField(field + ".name").WithValue(q.Name)
		}
		// An empty data source is allowed: the run itself reports it.
		if q.DataSource != "" {
			if _, ok := cat.dataSources[q.DataSource]; !ok {
				return nil, errors.NewNotFoundError("data source", q.DataSource).WithCause(errors.ErrDataSourceNotFound)
			}
		}
		cat.byID[q.ID] = len(cat.queries)
		cat.byName[q.Name] = len(cat.queries)
		cat.queries = append(cat.queries, q)
	}

	return cat, nil
}

// Path returns the file the catalog was loaded from.
func (c *Catalog) Path() string { return c.path }

// Len returns the number of queries.
func (c *Catalog) Len() int { return len(c.queries) }

// Query looks a query up by name, then by ID. The error names the closest
// matches when there is no such query.
func (c *Catalog) Query(ref string) (QueryDef, error) {
	if i, ok := c.byName[ref]; ok {
		return c.queries[i], nil
	}
	if i, ok := c.byID[ref]; ok {
		return c.queries[i], nil
	}

	err := errors.NewNotFoundError("query", ref).WithCause(errors.ErrQueryNotFound)
	if suggestions := c.Suggest(ref, 3); len(suggestions) > 0 {
		return QueryDef{}, fmt.Errorf("%w (did you mean %s?)", err, strings.Join(suggestions, ", "))
	}
	return QueryDef{}, err
}

// Queries returns all queries sorted by name.
func (c *Catalog) Queries() []QueryDef {
	out := slices.Clone(c.queries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DataSource returns the data source with the given ID, or nil.
func (c *Catalog) DataSource(id string) *dryrun.DataSource {
	return c.dataSources[id]
}

// Match returns the queries whose name matches a glob pattern, sorted by name.
// An empty pattern matches everything.
func (c *Catalog) Match(pattern string) ([]QueryDef, error) {
	if pattern == "" {
		return c.Queries(), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.NewValidationError("invalid pattern").WithField("pattern").WithValue(pattern)
	}

	var out []QueryDef
	for _, q := range c.Queries() {
		if g.Match(q.Name) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Suggest returns up to limit query names closest to name by edit distance.
// Names further than half the input's length are not suggested.
func (c *Catalog) Suggest(name string, limit int) []string {
	type candidate struct {
		name string
		dist int
	}

	maxDist := max(len(name)/2, 2)
	var candidates []candidate
	for _, q := range c.queries {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(q.Name))
		if d <= maxDist {
			candidates = append(candidates, candidate{name: q.Name, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	out := make([]string, 0, min(limit, len(candidates)))
	for _, cand := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, cand.name)
	}
	return out
}

// NewQuery builds the runnable query for def. latestDataID, when def has
// none, carries an earlier attached result over to the new query.
func (c *Catalog) NewQuery(def QueryDef, runner *dryrun.Runner, latestDataID string) *dryrun.Query {
	if def.LatestDataID != "" {
		latestDataID = def.LatestDataID
	}
	return dryrun.NewQuery(dryrun.QuerySpec{
		ID:             def.ID,
		Name:           def.Name,
		Text:           def.Text,
		DataSource:     c.dataSources[def.DataSource],
		Parameters:     def.Parameters,
		ApplyAutoLimit: def.ApplyAutoLimit,
		LatestDataID:   latestDataID,
	}, runner)
}

// Equal reports whether two query definitions describe the same query.
func (d QueryDef) Equal(other QueryDef) bool {
	return d.ID == other.ID &&
		d.Name == other.Name &&
		d.Text == other.Text &&
		d.DataSource == other.DataSource &&
		d.ApplyAutoLimit == other.ApplyAutoLimit &&
		d.LatestDataID == other.LatestDataID &&
		slices.Equal(d.Parameters, other.Parameters)
}
