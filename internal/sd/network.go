// Package sd provides the stock-and-flow primitives the demand model is
// built from: named constants, stocks, converters, gateways, lookup tables,
// and delays, collected in a Network that advances in fixed Euler steps.
package sd

import (
	"errors"
	"fmt"
	"math"
)

// Node is any named entity evaluable at a simulation time.
type Node interface {
	Name() string
	Eval(t float64) float64
}

// Network holds every named entity of one run plus the run parameters.
// Entities are built once, finalized, then mutated in place: stocks
// integrate on Advance, converters recompute on evaluation.
type Network struct {
	Start float64
	Stop  float64
	DT    float64

	constants  map[string]*Constant
	converters map[string]*Converter
	gateways   map[string]*Gateway
	lookups    map[string]*Lookup
	stocks     map[string]*Stock
	delays     map[string]*Delay

	names map[string]struct{}

	stockOrder  []*Stock
	delayOrder  []*Delay
	lookupOrder []*Lookup

	flowScratch []float64

	step      int
	finalized bool
	errs      []error
}

// New creates an empty network for the run window [start, stop) with the
// given step size.
func New(start, stop, dt float64) *Network {
	n := &Network{
		Start:      start,
		Stop:       stop,
		DT:         dt,
		constants:  make(map[string]*Constant),
		converters: make(map[string]*Converter),
		gateways:   make(map[string]*Gateway),
		lookups:    make(map[string]*Lookup),
		stocks:     make(map[string]*Stock),
		delays:     make(map[string]*Delay),
		names:      make(map[string]struct{}),
	}
	if dt <= 0 {
		n.errs = append(n.errs, fmt.Errorf("network: step size must be positive, got %g", dt))
	}
	if stop <= start {
		n.errs = append(n.errs, fmt.Errorf("network: stop %g must be after start %g", stop, start))
	}
	return n
}

// Steps returns the number of steps covering [Start, Stop).
func (n *Network) Steps() int {
	return int(math.Ceil((n.Stop-n.Start)/n.DT - 1e-9))
}

// Step returns the current step index (0 before the first Advance).
func (n *Network) Step() int { return n.step }

// Time returns the simulation time of the current step.
func (n *Network) Time() float64 { return n.Start + float64(n.step)*n.DT }

// StepsPerYear returns how many steps span one time unit.
func (n *Network) StepsPerYear() int { return int(math.Round(1 / n.DT)) }

func (n *Network) register(name string) bool {
	if _, dup := n.names[name]; dup {
		n.errs = append(n.errs, fmt.Errorf("network: duplicate entity name %q", name))
		return false
	}
	if n.finalized {
		n.errs = append(n.errs, fmt.Errorf("network: entity %q added after finalize", name))
	}
	n.names[name] = struct{}{}
	return true
}

// Finalize validates the constructed network: accumulated construction
// errors, dangling converter dependencies, and instantaneous converter
// cycles. Stock and delay edges carry state across steps and are excluded
// from the cycle graph.
func (n *Network) Finalize() error {
	errs := n.errs
	for _, c := range n.converters {
		for _, dep := range c.deps {
			if _, ok := n.names[dep]; !ok {
				errs = append(errs, fmt.Errorf("converter %q: unknown dependency %q", c.name, dep))
			}
		}
	}
	if err := n.checkCycles(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	n.finalized = true
	n.flowScratch = make([]float64, len(n.stockOrder))
	return nil
}

// checkCycles runs a three-color DFS over converter→converter edges.
func (n *Network) checkCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(n.converters))
	var visit func(c *Converter) error
	visit = func(c *Converter) error {
		color[c.name] = gray
		for _, dep := range c.deps {
			next, ok := n.converters[dep]
			if !ok {
				continue
			}
			switch color[dep] {
			case gray:
				return fmt.Errorf("converter cycle through %q and %q", c.name, dep)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[c.name] = black
		return nil
	}
	for _, c := range n.converters {
		if color[c.name] == white {
			if err := visit(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Advance integrates every stock across one step and records every delay's
// input. Flows are evaluated against step-i values before anything commits,
// so a step-i flow never observes a step-i+1 stock.
func (n *Network) Advance() {
	t := n.Time()
	for i, s := range n.stockOrder {
		n.flowScratch[i] = 0
		if s.flow != nil {
			n.flowScratch[i] = s.flow(t)
		}
	}
	for _, d := range n.delayOrder {
		d.record(d.input(t))
	}
	for i, s := range n.stockOrder {
		s.value += n.flowScratch[i] * n.DT
	}
	n.step++
}

// OverrideConstant replaces a constant's value by exact name. Allowed once
// per constant and only before the first Advance.
func (n *Network) OverrideConstant(name string, v float64) error {
	c, ok := n.constants[name]
	if !ok {
		return fmt.Errorf("override constant: unknown constant %q", name)
	}
	if n.step > 0 {
		return fmt.Errorf("override constant %q: run already started", name)
	}
	if c.overridden {
		return fmt.Errorf("override constant %q: already overridden", name)
	}
	c.value = v
	c.overridden = true
	return nil
}

// ReplaceLookup swaps a lookup table's points wholesale by exact name.
func (n *Network) ReplaceLookup(name string, pts []Point) error {
	l, ok := n.lookups[name]
	if !ok {
		return fmt.Errorf("replace lookup: unknown lookup %q", name)
	}
	if err := validatePoints(name, pts); err != nil {
		return err
	}
	l.pts = append(l.pts[:0], pts...)
	return nil
}

// HasConstant reports whether a constant with the given name exists.
func (n *Network) HasConstant(name string) bool {
	_, ok := n.constants[name]
	return ok
}

// HasLookup reports whether a lookup with the given name exists.
func (n *Network) HasLookup(name string) bool {
	_, ok := n.lookups[name]
	return ok
}

// ExtrapolationNotices reports every lookup whose domain t has exited for
// the first time in a given direction. Each (lookup, direction) is reported
// at most once per run; hold-last-value evaluation continues regardless.
func (n *Network) ExtrapolationNotices(t float64) []string {
	var msgs []string
	for _, l := range n.lookupOrder {
		if len(l.pts) == 0 {
			continue
		}
		lo, hi := l.Domain()
		if t < lo && !l.warnedLow {
			l.warnedLow = true
			msgs = append(msgs, fmt.Sprintf("lookup %q: t=%.4f below domain start %.4f, holding first value", l.name, t, lo))
		}
		if t > hi && !l.warnedHigh {
			l.warnedHigh = true
			msgs = append(msgs, fmt.Sprintf("lookup %q: t=%.4f beyond domain end %.4f, holding last value", l.name, t, hi))
		}
	}
	return msgs
}
