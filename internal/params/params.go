// Package params defines the in-memory parameter bundle consumed by the
// network builder and the anchor-client factories: sector/product lists,
// the coverage map, wide parameter tables, capacity/price series, run
// parameters, overrides, and initial-condition seeds.
package params

import (
	"fmt"

	"github.com/talgya/demandsim/internal/sd"
)

// Quarter is the reporting granularity in simulation time units (years).
// Per-quarter rates are scaled by dt/Quarter when applied per step.
const Quarter = 0.25

// Mode selects the anchor parameterization granularity.
type Mode uint8

const (
	// ModeSector reads anchor parameters from the per-sector table and
	// requirement schedules from the per-product table.
	ModeSector Mode = iota
	// ModeStrictPair requires the full strict-pair key set for every
	// declared (sector, product) pair.
	ModeStrictPair
)

func (m Mode) String() string {
	if m == ModeStrictPair {
		return "strict-pair"
	}
	return "sector"
}

// Pair identifies one sector×product combination.
type Pair struct {
	Sector  string
	Product string
}

// Key returns the stable registry key for the pair.
func (p Pair) Key() string { return p.Sector + "|" + p.Product }

// Coverage describes one covered pair: the sector starts ordering the
// product no earlier than StartYear.
type Coverage struct {
	StartYear float64
}

// Table is a wide parameter table: entity name → parameter key → value.
type Table map[string]map[string]float64

// SeededAnchors seeds pre-existing ACTIVE anchors at run start.
type SeededAnchors struct {
	Count           int
	ElapsedQuarters int // optional aging applied before the first step
}

// InitialConditions seed state that exists before the first step.
type InitialConditions struct {
	// ActiveAnchors maps a creation key (sector, or pair key in
	// strict-pair mode) to pre-existing ACTIVE anchors.
	ActiveAnchors map[string]SeededAnchors
	// DirectClients maps a product to clients already accumulated at
	// start; they enter the youngest cohort bucket.
	DirectClients map[string]float64
	// CompletedBacklog maps a creation key to a completed-project count
	// converted to floor(backlog/threshold) immediately-ACTIVE anchors.
	// The remainder below the threshold is discarded, not carried.
	CompletedBacklog map[string]float64
}

// Overrides replace built network entities by exact name before stepping.
type Overrides struct {
	Constants map[string]float64
	Lookups   map[string][]sd.Point
}

// Bundle is the complete parameter set for one run.
type Bundle struct {
	Sectors  []string
	Products []string

	// Coverage declares which sectors order which products, with per-pair
	// start years.
	Coverage map[Pair]Coverage

	// Pairs is the explicit, non-inferred pair list required in
	// strict-pair mode.
	Pairs []Pair

	SectorParams  Table
	ProductParams Table
	PairParams    map[Pair]map[string]float64

	// Capacity and Price are strictly-increasing time series per product.
	// Capacity values are annual and converted to a per-step basis at
	// build time.
	Capacity map[string][]sd.Point
	Price    map[string][]sd.Point

	Start float64
	Stop  float64
	DT    float64
	Mode  Mode

	Overrides Overrides
	Seed      InitialConditions
}

// SectorParam returns a required sector parameter, erroring with the exact
// missing key. No defaults are substituted.
func (b *Bundle) SectorParam(sector, key string) (float64, error) {
	row, ok := b.SectorParams[sector]
	if !ok {
		return 0, fmt.Errorf("sector %q: no parameter row", sector)
	}
	v, ok := row[key]
	if !ok {
		return 0, fmt.Errorf("sector %q: missing required parameter %q", sector, key)
	}
	return v, nil
}

// ProductParam returns a required product parameter, erroring with the
// exact missing key.
func (b *Bundle) ProductParam(product, key string) (float64, error) {
	row, ok := b.ProductParams[product]
	if !ok {
		return 0, fmt.Errorf("product %q: no parameter row", product)
	}
	v, ok := row[key]
	if !ok {
		return 0, fmt.Errorf("product %q: missing required parameter %q", product, key)
	}
	return v, nil
}

// PairParam returns a required strict-pair parameter, erroring with the
// exact missing triple.
func (b *Bundle) PairParam(pr Pair, key string) (float64, error) {
	row, ok := b.PairParams[pr]
	if !ok {
		return 0, fmt.Errorf("pair %s/%s: no parameter row", pr.Sector, pr.Product)
	}
	v, ok := row[key]
	if !ok {
		return 0, fmt.Errorf("pair %s/%s: missing required parameter %q", pr.Sector, pr.Product, key)
	}
	return v, nil
}

// Covers reports whether the sector orders the product.
func (b *Bundle) Covers(sector, product string) bool {
	_, ok := b.Coverage[Pair{Sector: sector, Product: product}]
	return ok
}

// CoveredProducts returns the products a sector orders, in Products order
// for deterministic iteration.
func (b *Bundle) CoveredProducts(sector string) []string {
	var out []string
	for _, p := range b.Products {
		if b.Covers(sector, p) {
			out = append(out, p)
		}
	}
	return out
}

// CoveringSectors returns the sectors ordering a product, in Sectors order.
func (b *Bundle) CoveringSectors(product string) []string {
	var out []string
	for _, s := range b.Sectors {
		if b.Covers(s, product) {
			out = append(out, s)
		}
	}
	return out
}

// DeclaredPairs returns every covered pair in deterministic
// (Sectors × Products) order.
func (b *Bundle) DeclaredPairs() []Pair {
	var out []Pair
	for _, s := range b.Sectors {
		for _, p := range b.Products {
			if b.Covers(s, p) {
				out = append(out, Pair{Sector: s, Product: p})
			}
		}
	}
	return out
}

// CreationKeys returns the ordered agent-registry keys: sector names in
// sector mode, pair keys in strict-pair mode.
func (b *Bundle) CreationKeys() []string {
	if b.Mode == ModeStrictPair {
		keys := make([]string, 0, len(b.Pairs))
		for _, pr := range b.DeclaredPairs() {
			keys = append(keys, pr.Key())
		}
		return keys
	}
	return append([]string(nil), b.Sectors...)
}
