// Package registry holds the portfolios the service plans for and the assets
// behind them. It is the planning side's view of the fleet: snapshots feed the
// model builder, and mutations raise asset-change triggers so in-flight plans
// get rebuilt.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/volteq/flexplan/core/model"
)

type entry struct {
	asset     model.Asset
	available bool
}

// Registry is an in-memory asset source. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	portfolios map[string]map[string]entry
	notify     func(model.Trigger)
	now        func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		portfolios: make(map[string]map[string]entry),
		now:        time.Now,
	}
}

// NewStatic returns a registry seeded with the given portfolios.
func NewStatic(portfolios map[string][]model.Asset) (*Registry, error) {
	r := New()
	for name, assets := range portfolios {
		if err := r.SetPortfolio(name, assets); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetNotify installs the callback invoked with an asset-change trigger after
// every mutation. Typically the portfolio controller's Submit.
func (r *Registry) SetNotify(fn func(model.Trigger)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Portfolios returns the registered portfolio names, sorted.
func (r *Registry) Portfolios() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.portfolios))
	for name := range r.portfolios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetPortfolio replaces the asset set of a portfolio. All assets start
// available.
func (r *Registry) SetPortfolio(portfolio string, assets []model.Asset) error {
	if portfolio == "" {
		return fmt.Errorf("portfolio name must not be empty")
	}
	set := make(map[string]entry, len(assets))
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := set[a.ID]; dup {
			return fmt.Errorf("portfolio %s: duplicate asset %s", portfolio, a.ID)
		}
		set[a.ID] = entry{asset: a.Clone(), available: true}
	}
	r.mu.Lock()
	r.portfolios[portfolio] = set
	r.mu.Unlock()
	r.emit(portfolio, "portfolio replaced")
	return nil
}

// UpsertAsset adds or replaces one asset in a portfolio.
func (r *Registry) UpsertAsset(portfolio string, a model.Asset) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		set = make(map[string]entry)
		r.portfolios[portfolio] = set
	}
	set[a.ID] = entry{asset: a.Clone(), available: true}
	r.mu.Unlock()
	r.emit(portfolio, a.ID)
	return nil
}

// RemoveAsset deletes an asset from a portfolio. Removing an unknown asset is
// a no-op.
func (r *Registry) RemoveAsset(portfolio, assetID string) {
	r.mu.Lock()
	set, ok := r.portfolios[portfolio]
	if ok {
		_, ok = set[assetID]
		delete(set, assetID)
	}
	r.mu.Unlock()
	if ok {
		r.emit(portfolio, assetID)
	}
}

// SetAvailability flips an asset in or out of the planning snapshot, e.g. for
// an outage. The asset keeps its registration either way.
func (r *Registry) SetAvailability(portfolio, assetID string, available bool) error {
	r.mu.Lock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown portfolio %s", portfolio)
	}
	e, ok := set[assetID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("portfolio %s: unknown asset %s", portfolio, assetID)
	}
	changed := e.available != available
	e.available = available
	set[assetID] = e
	r.mu.Unlock()
	if changed {
		r.emit(portfolio, assetID)
	}
	return nil
}

// SetBaseline replaces an asset's baseline forecast. Forecast refreshes do
// not raise asset-change triggers; the feed raises a forecast-update trigger
// once a whole batch has been applied.
func (r *Registry) SetBaseline(portfolio, assetID string, points []model.SeriesPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		return fmt.Errorf("unknown portfolio %s", portfolio)
	}
	e, ok := set[assetID]
	if !ok {
		return fmt.Errorf("portfolio %s: unknown asset %s", portfolio, assetID)
	}
	e.asset.BaselineKW = append([]model.SeriesPoint(nil), points...)
	set[assetID] = e
	return nil
}

// SetCost replaces an asset's marginal cost forecast. Like SetBaseline it
// raises no trigger.
func (r *Registry) SetCost(portfolio, assetID string, points []model.SeriesPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		return fmt.Errorf("unknown portfolio %s", portfolio)
	}
	e, ok := set[assetID]
	if !ok {
		return fmt.Errorf("portfolio %s: unknown asset %s", portfolio, assetID)
	}
	e.asset.CostPerKWh = append([]model.SeriesPoint(nil), points...)
	set[assetID] = e
	return nil
}

// SetStoredState refreshes a storage asset's measured energy state, clamped
// to its declared bounds. State refreshes raise no trigger; the next planning
// run simply starts from the measured state.
func (r *Registry) SetStoredState(portfolio, assetID string, stateKWh float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		return fmt.Errorf("unknown portfolio %s", portfolio)
	}
	e, ok := set[assetID]
	if !ok {
		return fmt.Errorf("portfolio %s: unknown asset %s", portfolio, assetID)
	}
	if !e.asset.Stateful() {
		return fmt.Errorf("portfolio %s: asset %s carries no energy state", portfolio, assetID)
	}
	if stateKWh < e.asset.MinStateKWh {
		stateKWh = e.asset.MinStateKWh
	}
	if stateKWh > e.asset.MaxStateKWh {
		stateKWh = e.asset.MaxStateKWh
	}
	e.asset.InitialStateKWh = stateKWh
	set[assetID] = e
	return nil
}

// Snapshot implements replan.AssetSource. It returns deep copies of the
// available assets, sorted by ID for deterministic model building.
func (r *Registry) Snapshot(_ context.Context, portfolio string) ([]model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.portfolios[portfolio]
	if !ok {
		return nil, fmt.Errorf("unknown portfolio %s", portfolio)
	}
	assets := make([]model.Asset, 0, len(set))
	for _, e := range set {
		if !e.available {
			continue
		}
		assets = append(assets, e.asset.Clone())
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (r *Registry) emit(portfolio, reason string) {
	r.mu.RLock()
	fn := r.notify
	now := r.now
	r.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(model.Trigger{
		Kind:      model.TriggerAssetChange,
		Portfolio: portfolio,
		At:        now(),
		Reason:    reason,
	})
}
