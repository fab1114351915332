package component

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Family tags, stored in snapshots to reconstruct models by name.
const (
	TagBernoulli   = "bernoulli"
	TagCategorical = "categorical"
	TagNormal      = "normal"
	TagPoisson     = "poisson"
	TagNormalUC    = "normal_uc"
	TagLinReg      = "linreg"
)

// Args is the family-specific argument bundle.
type Args struct {
	// Categories is the cardinality of a categorical column.
	Categories int `json:"categories,omitempty"`
}

// Component holds one cluster's sufficient statistics for one column.
//
// Implementations read their shared hyperparameters live from the
// owning Family, so a hyperparameter transition immediately changes
// every component's likelihood.
type Component interface {
	// N returns the number of (non-missing) values incorporated.
	N() float64

	// Incorporate adds value x with the given covariate inputs.
	Incorporate(x float64, inputs []float64)

	// Unincorporate removes a previously incorporated value.
	Unincorporate(x float64, inputs []float64)

	// Logpdf returns the predictive log density of x under the current
	// statistics (collapsed: conjugate posterior predictive;
	// uncollapsed: density at the sampled parameter). Values outside
	// the family's support yield -Inf.
	Logpdf(x float64, inputs []float64) float64

	// Simulate draws one value.
	Simulate(inputs []float64, rng *rand.Rand) float64

	// LogpdfScore returns the marginal log likelihood of all data in
	// this cluster (collapsed: closed form; uncollapsed: likelihood at
	// the sampled parameter plus the parameter's log prior).
	LogpdfScore() float64

	// State exports the component for persistence.
	State() ClusterState
}

// Uncollapsed is implemented by components with explicit sampled
// parameters.
type Uncollapsed interface {
	Component

	// ResampleParams redraws the cluster's parameter from its
	// conditional posterior given the current statistics and hypers.
	ResampleParams(rng *rand.Rand)
}

// Family builds components for one distribution family and owns the
// column's shared hyperparameters and hyper grids.
type Family interface {
	// Tag returns the family's stable name.
	Tag() string

	// Conditional reports whether the likelihood depends on sibling
	// (root) column values in addition to the cluster.
	Conditional() bool

	// Uncollapsed reports whether components carry explicit sampled
	// parameters.
	Uncollapsed() bool

	// Args returns the family-specific argument bundle.
	Args() Args

	// Valid reports whether the non-missing value x lies in the
	// family's support and can be incorporated.
	Valid(x float64) bool

	// Configure binds the family to a column: values is the column's
	// raw data (NaN entries ignored), used to derive hyper grids, and
	// numInputs is the number of root covariates for conditional
	// families. Must be called before TransitionHypers.
	Configure(values []float64, numInputs int)

	// Hypers returns a copy of the shared hyperparameters.
	Hypers() map[string]float64

	// SetHypers replaces the shared hyperparameters.
	SetHypers(h map[string]float64) error

	// NewComponent returns a fresh component with empty statistics.
	// Uncollapsed families seed its parameter from the prior using rng.
	NewComponent(rng *rand.Rand) Component

	// TransitionHypers resamples the hyperparameters by grid Gibbs:
	// each hyper in turn is scored over its grid against the joint
	// marginal of all cluster statistics and redrawn categorically.
	TransitionHypers(clusters []Component, rng *rand.Rand)

	// RestoreComponent rebuilds a component from persisted state.
	RestoreComponent(cs ClusterState) (Component, error)
}

// ClusterState is the persisted form of one cluster's statistics.
type ClusterState struct {
	N      float64              `json:"n"`
	Stats  map[string]float64   `json:"stats,omitempty"`
	Vecs   map[string][]float64 `json:"vecs,omitempty"`
	Params map[string]float64   `json:"params,omitempty"`
}

// ColumnState is the persisted form of a whole column model.
type ColumnState struct {
	ID       int                `json:"id"`
	Family   string             `json:"family"`
	Inputs   []int              `json:"inputs,omitempty"`
	Args     Args               `json:"args"`
	Hypers   map[string]float64 `json:"hypers"`
	Clusters []ClusterState     `json:"clusters"`
	Aux      *ClusterState      `json:"aux,omitempty"`
	Missing  []uint32           `json:"missing,omitempty"`
}

// NewFamily constructs a family by its stable tag.
func NewFamily(tag string, args Args) (Family, error) {
	switch tag {
	case TagBernoulli:
		return NewBernoulli(), nil
	case TagCategorical:
		return NewCategorical(args.Categories)
	case TagNormal:
		return NewNormal(), nil
	case TagPoisson:
		return NewPoisson(), nil
	case TagNormalUC:
		return NewNormalUC(), nil
	case TagLinReg:
		return NewLinReg(), nil
	default:
		return nil, fmt.Errorf("component: unknown family %q", tag)
	}
}

// Model composes a Family with the per-cluster component records of one
// column. The record list length always equals the partition's cluster
// count; the auxiliary component stands for the synthetic fresh cluster
// used by transition kernels and hypothetical queries.
type Model struct {
	id       int
	family   Family
	inputs   []int
	clusters []Component
	aux      Component
	missing  *roaring.Bitmap
}

// NewModel creates a model with zero clusters for column id. inputs
// lists the root column ids feeding a conditional family, in the order
// their values are passed to Logpdf/Simulate.
func NewModel(id int, family Family, inputs []int, rng *rand.Rand) *Model {
	return &Model{
		id:      id,
		family:  family,
		inputs:  append([]int(nil), inputs...),
		aux:     family.NewComponent(rng),
		missing: roaring.New(),
	}
}

// ID returns the column id.
func (m *Model) ID() int { return m.id }

// Family returns the model's family.
func (m *Model) Family() Family { return m.family }

// Inputs returns the root column ids feeding a conditional family.
func (m *Model) Inputs() []int { return append([]int(nil), m.inputs...) }

// Conditional reports whether the column is a leaf.
func (m *Model) Conditional() bool { return m.family.Conditional() }

// K returns the number of cluster records.
func (m *Model) K() int { return len(m.clusters) }

// Cluster returns the component record for cluster k.
func (m *Model) Cluster(k int) Component { return m.clusters[k] }

// IsMissing reports whether rowid was incorporated with a missing value.
func (m *Model) IsMissing(rowid int) bool { return m.missing.Contains(uint32(rowid)) }

// Incorporate adds rowid's value to cluster k. Label k == K() promotes
// the auxiliary component to a new cluster record and seeds a fresh
// auxiliary. Missing values (NaN) are tracked for row bookkeeping but
// excluded from the statistics.
func (m *Model) Incorporate(rowid int, x float64, inputs []float64, k int, rng *rand.Rand) {
	if k < 0 || k > len(m.clusters) {
		panic(fmt.Sprintf("component: column %d label %d out of range [0,%d]", m.id, k, len(m.clusters)))
	}
	if k == len(m.clusters) {
		m.clusters = append(m.clusters, m.aux)
		m.aux = m.family.NewComponent(rng)
	}
	if math.IsNaN(x) {
		m.missing.Add(uint32(rowid))
		return
	}
	m.clusters[k].Incorporate(x, inputs)
}

// Unincorporate removes rowid's value from cluster k. Cluster-record
// removal is driven separately via DropCluster so that the partition
// decides when a label disappears.
func (m *Model) Unincorporate(rowid int, x float64, inputs []float64, k int) {
	if math.IsNaN(x) {
		m.missing.Remove(uint32(rowid))
		return
	}
	m.clusters[k].Unincorporate(x, inputs)
}

// DropCluster removes the record for cluster k, shifting the records
// above it down by one. It mirrors the partition's label compaction.
func (m *Model) DropCluster(k int) {
	m.clusters = append(m.clusters[:k], m.clusters[k+1:]...)
}

// Logpdf evaluates the predictive log density of x under cluster k.
// Label k == K() evaluates against the auxiliary (fresh) component.
// Missing values have log density zero.
func (m *Model) Logpdf(x float64, inputs []float64, k int) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if k == len(m.clusters) {
		return m.aux.Logpdf(x, inputs)
	}
	return m.clusters[k].Logpdf(x, inputs)
}

// Simulate draws one value from cluster k (or the auxiliary component
// for k == K()).
func (m *Model) Simulate(k int, inputs []float64, rng *rand.Rand) float64 {
	if k == len(m.clusters) {
		return m.aux.Simulate(inputs, rng)
	}
	return m.clusters[k].Simulate(inputs, rng)
}

// LogpdfScore returns the column's total marginal log likelihood.
func (m *Model) LogpdfScore() float64 {
	score := 0.0
	for _, c := range m.clusters {
		score += c.LogpdfScore()
	}
	return score
}

// TransitionHypers runs one grid-Gibbs sweep over the family's
// hyperparameters, then, for uncollapsed families, resamples every
// cluster's latent parameter and reseeds the auxiliary component.
func (m *Model) TransitionHypers(rng *rand.Rand) {
	m.family.TransitionHypers(m.clusters, rng)
	if !m.family.Uncollapsed() {
		return
	}
	for _, c := range m.clusters {
		c.(Uncollapsed).ResampleParams(rng)
	}
	m.aux = m.family.NewComponent(rng)
}

// State exports the model for persistence.
func (m *Model) State() ColumnState {
	cs := ColumnState{
		ID:       m.id,
		Family:   m.family.Tag(),
		Inputs:   append([]int(nil), m.inputs...),
		Args:     m.family.Args(),
		Hypers:   m.family.Hypers(),
		Clusters: make([]ClusterState, len(m.clusters)),
		Missing:  m.missing.ToArray(),
	}
	for k, c := range m.clusters {
		cs.Clusters[k] = c.State()
	}
	aux := m.aux.State()
	cs.Aux = &aux
	return cs
}

// Restore rebuilds a model from persisted state. The returned model has
// no hyper grids until Family.Configure is called with the column data.
func Restore(cs ColumnState, rng *rand.Rand) (*Model, error) {
	family, err := NewFamily(cs.Family, cs.Args)
	if err != nil {
		return nil, err
	}
	if err := family.SetHypers(cs.Hypers); err != nil {
		return nil, err
	}
	m := &Model{
		id:      cs.ID,
		family:  family,
		inputs:  append([]int(nil), cs.Inputs...),
		missing: roaring.BitmapOf(cs.Missing...),
	}
	m.clusters = make([]Component, len(cs.Clusters))
	for k, c := range cs.Clusters {
		comp, err := family.RestoreComponent(c)
		if err != nil {
			return nil, fmt.Errorf("component: column %d cluster %d: %w", cs.ID, k, err)
		}
		m.clusters[k] = comp
	}
	if cs.Aux != nil {
		aux, err := family.RestoreComponent(*cs.Aux)
		if err != nil {
			return nil, fmt.Errorf("component: column %d aux: %w", cs.ID, err)
		}
		m.aux = aux
	} else {
		m.aux = family.NewComponent(rng)
	}
	return m, nil
}

// gridGibbsHypers resamples each hyper in turn: score the joint
// marginal of all clusters under every grid value, draw categorically,
// keep the draw. Hypers are visited in random order.
func gridGibbsHypers(f Family, grids map[string][]float64, clusters []Component, rng *rand.Rand) {
	if len(grids) == 0 {
		return
	}
	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	sort.Strings(names)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	for _, name := range names {
		grid := grids[name]
		hypers := f.Hypers()
		logps := make([]float64, len(grid))
		for i, val := range grid {
			hypers[name] = val
			if err := f.SetHypers(hypers); err != nil {
				panic(fmt.Sprintf("component: grid value rejected: %v", err))
			}
			score := 0.0
			for _, c := range clusters {
				score += c.LogpdfScore()
			}
			logps[i] = score
		}
		hypers[name] = grid[mathx.LogChoice(rng, logps)]
		if err := f.SetHypers(hypers); err != nil {
			panic(fmt.Sprintf("component: grid value rejected: %v", err))
		}
	}
}

// validValues filters NaN entries out of a column.
func validValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, x := range values {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// linspace returns n points spaced uniformly on [lo, hi].
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	step := (hi - lo) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// requireHypers copies h after checking that exactly the named keys are
// present and positive (allowNonPositive lists exceptions).
func requireHypers(h map[string]float64, names []string, allowNonPositive ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		v, ok := h[name]
		if !ok {
			return nil, fmt.Errorf("component: missing hyper %q", name)
		}
		free := false
		for _, a := range allowNonPositive {
			if a == name {
				free = true
				break
			}
		}
		if !free && !(v > 0) {
			return nil, fmt.Errorf("component: hyper %q must be positive, got %v", name, v)
		}
		out[name] = v
	}
	return out, nil
}

// logNormalPdf is log N(x | mu, precision rho).
func logNormalPdf(x, mu, rho float64) float64 {
	return 0.5*(math.Log(rho)-math.Log(2*math.Pi)) - 0.5*rho*(x-mu)*(x-mu)
}

// logGammaPdf is log Gamma(x | shape a, rate b).
func logGammaPdf(x, a, b float64) float64 {
	if !(x > 0) {
		return math.Inf(-1)
	}
	return a*math.Log(b) - mathx.Lgamma(a) + (a-1)*math.Log(x) - b*x
}

const hyperGridSize = 30
