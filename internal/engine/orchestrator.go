// Package engine runs the step loop over the built demand network: agent
// creation from network signals, agent actions, gateway aggregation, KPI
// capture, network advance, and per-step validation, in a strict order
// that must not be rearranged.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/demandsim/internal/agents"
	"github.com/talgya/demandsim/internal/market"
	"github.com/talgya/demandsim/internal/params"
)

// Snapshot is one step's captured KPI values: a flat named-metric mapping
// taken at the single moment in the loop when network state is valid for
// the step.
type Snapshot struct {
	Step   int
	Time   float64
	Values map[string]float64
}

// Result is a completed run: the ordered per-step snapshots. Metrics must
// be read from here, never recomputed from the network after the run.
type Result struct {
	Snapshots []Snapshot
}

// Total sums one metric across every snapshot.
func (r *Result) Total(metric string) float64 {
	sum := 0.0
	for _, s := range r.Snapshots {
		sum += s.Values[metric]
	}
	return sum
}

// Final returns the last snapshot.
func (r *Result) Final() Snapshot {
	return r.Snapshots[len(r.Snapshots)-1]
}

// Orchestrator owns the run loop, the agent factories, and the per-key
// agent registries. Agents are appended on creation and never removed;
// once created they act every subsequent step for the life of the run.
type Orchestrator struct {
	model     *market.Model
	factories map[string]*agents.Factory
	keys      []string
	registry  map[string][]*agents.Anchor
	log       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New builds the orchestrator: agent factories from the bundle, empty
// registries per creation key, and any seeded initial conditions. All
// construction errors surface here, before the first step.
func New(m *market.Model, opts ...Option) (*Orchestrator, error) {
	factories, err := agents.BuildFactories(m.Bundle)
	if err != nil {
		return nil, fmt.Errorf("build agent factories: %w", err)
	}
	o := &Orchestrator{
		model:     m,
		factories: factories,
		keys:      m.CreationKeys,
		registry:  make(map[string][]*agents.Anchor, len(m.CreationKeys)),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.applySeeds(); err != nil {
		return nil, err
	}
	return o, nil
}

// applySeeds installs pre-existing ACTIVE anchors and converts completed
// backlogs to floor(backlog/threshold) immediately-ACTIVE anchors, the
// remainder discarded.
func (o *Orchestrator) applySeeds() error {
	seed := o.model.Bundle.Seed
	start := o.model.Net.Start
	for key, s := range seed.ActiveAnchors {
		f, ok := o.factories[key]
		if !ok {
			return fmt.Errorf("seed active anchors: unknown creation key %q", key)
		}
		for i := 0; i < s.Count; i++ {
			o.registry[key] = append(o.registry[key], f.NewActive(start, s.ElapsedQuarters))
		}
	}
	for key, backlog := range seed.CompletedBacklog {
		f, ok := o.factories[key]
		if !ok {
			return fmt.Errorf("seed completed backlog: unknown creation key %q", key)
		}
		o.registry[key] = append(o.registry[key], f.FromBacklog(backlog, start)...)
	}
	return nil
}

// Run advances the network across the full horizon and returns the ordered
// KPI snapshots. Any validation failure aborts the entire run at the
// failing step; there is no partial-result salvage.
func (o *Orchestrator) Run() (*Result, error) {
	net := o.model.Net
	steps := net.Steps()
	res := &Result{Snapshots: make([]Snapshot, 0, steps)}
	o.log.Info("run starting",
		"start", net.Start, "stop", net.Stop, "dt", net.DT,
		"steps", steps, "mode", o.model.Bundle.Mode.String(),
	)

	for i := 0; i < steps; i++ {
		t := net.Start + float64(i)*net.DT

		// Creation signals: validate, then instantiate that many agents.
		for _, key := range o.keys {
			sig := o.model.CreationSignal(key, t)
			if err := CheckCreationSignal(key, t, sig); err != nil {
				return nil, err
			}
			for j := 0; j < int(math.Round(sig)); j++ {
				o.registry[key] = append(o.registry[key], o.factories[key].New())
			}
		}

		// Agent actions, aggregated per pair. Non-positive and
		// out-of-coverage contributions are discarded.
		agg := make(map[params.Pair]float64)
		for _, key := range o.keys {
			sector := market.SectorOf(key)
			for _, a := range o.registry[key] {
				for product, v := range a.Act(t, i, net.DT) {
					if v <= 0 || !o.model.Bundle.Covers(sector, product) {
						continue
					}
					agg[params.Pair{Sector: sector, Product: product}] += v
				}
			}
		}

		// ABM metrics now: registry state is valid for this step only
		// until the network advances.
		abm := o.collectABM()

		// Gateways: every declared pair is written, absent pairs to 0.0,
		// so no stale prior-step value survives.
		for _, pr := range o.model.Bundle.DeclaredPairs() {
			o.model.SetGateway(pr, agg[pr])
		}

		// KPI capture before the advance; these values become unreliable
		// afterwards.
		snap := Snapshot{Step: i, Time: t, Values: o.model.CaptureKPIs(t)}
		for k, v := range abm {
			snap.Values[k] = v
		}

		net.Advance()

		if err := o.validate(t, i, steps); err != nil {
			return nil, err
		}
		for _, msg := range net.ExtrapolationNotices(t) {
			o.log.Warn("lookup extrapolation", "t", t, "detail", msg)
		}

		res.Snapshots = append(res.Snapshots, snap)

		if (i+1)%net.StepsPerYear() == 0 {
			o.log.Debug("year complete",
				"t", t,
				"revenue", snap.Values["revenue.total"],
				"delivered", snap.Values["delivered.total"],
				"anchors_active", snap.Values["anchors.active.total"],
			)
		}
	}

	last := res.Final()
	o.log.Info("run complete",
		"steps", steps,
		"revenue_total", res.Total("revenue.total"),
		"anchors_active", last.Values["anchors.active.total"],
	)
	return res, nil
}

// validate runs the per-step checks and, on the sparse schedule (first
// four steps, midpoint, final step), the deeper structural diagnostics.
func (o *Orchestrator) validate(t float64, step, steps int) error {
	anchor, direct, total := o.model.RevenueComponents(t)
	if err := CheckRevenueIdentity(t, anchor, direct, total); err != nil {
		return err
	}
	for _, product := range o.model.Bundle.Products {
		if err := CheckFulfillmentRatio(product, t, o.model.FulfillmentRatio(product, t)); err != nil {
			return err
		}
	}
	if step < 4 || step == steps/2 || step == steps-1 {
		if err := o.model.Diagnostics(t); err != nil {
			return err
		}
	}
	return nil
}

// collectABM counts agent states and in-flight projects per sector and in
// total.
func (o *Orchestrator) collectABM() map[string]float64 {
	out := make(map[string]float64, 2*len(o.keys)+2)
	var totalActive, totalInflight float64
	for _, key := range o.keys {
		sector := market.SectorOf(key)
		var active, inflight float64
		for _, a := range o.registry[key] {
			if a.State() == agents.StateActive {
				active++
			}
			inflight += float64(a.ProjectsInFlight())
		}
		out["anchors."+sector+".active"] += active
		out["projects."+sector+".inflight"] += inflight
		totalActive += active
		totalInflight += inflight
	}
	out["anchors.active.total"] = totalActive
	out["projects.inflight.total"] = totalInflight
	return out
}
