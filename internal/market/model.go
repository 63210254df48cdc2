// Package market builds the demand network: per-product direct-business
// chains (leads, conversion, cohort aging, demand, fulfillment, delayed
// delivery, revenue) and per-sector anchor entry points (gated lead
// generation, accumulate-and-fire creation signals, requirement gateways),
// wired into one stock-and-flow network.
package market

import (
	"fmt"
	"strings"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

// maxMissingReported caps the strict-pair missing-parameter enumeration.
const maxMissingReported = 20

// Model is the built demand network plus the handles the orchestrator
// drives each step: creation signals, requirement gateways, and the named
// KPI nodes. Single instance per run.
type Model struct {
	Net    *sd.Network
	Bundle *params.Bundle

	// CreationKeys is the deterministic ordering of agent registries:
	// sectors in sector mode, pair keys in strict-pair mode.
	CreationKeys []string

	creation    map[string]*sd.Converter
	anchorLeads map[string]*sd.Converter
	accums      []*sd.Stock

	gateways   map[params.Pair]*sd.Gateway
	pairDemand map[params.Pair]sd.Node

	products map[string]*productNodes

	// capacityProducts maps capacity lookup names back to their product,
	// so overrides repeat the annual→per-step conversion.
	capacityProducts map[string]string
}

// productNodes holds one product's network handles.
type productNodes struct {
	directLeads     *sd.Converter
	newClients      *sd.Converter
	buckets         []*sd.Stock
	clients         *sd.Converter
	directDemand    sd.Node
	anchorDemand    *sd.Converter
	demand          *sd.Converter
	fulfillment     *sd.Converter
	delivered       sd.Node
	directDelivered sd.Node
	pairDelivered   map[string]sd.Node // sector → delayed pair delivery
	price           *sd.Lookup
	capacity        *sd.Lookup
}

// Build constructs the full network from a parameter bundle. Any missing
// required parameter, coverage entry, or table is fatal here, before any
// stepping; overrides are validated against the built network and applied
// before the first step.
func Build(b *params.Bundle) (*Model, error) {
	if err := validateBundle(b); err != nil {
		return nil, err
	}

	m := &Model{
		Net:              sd.New(b.Start, b.Stop, b.DT),
		Bundle:           b,
		CreationKeys:     b.CreationKeys(),
		creation:         make(map[string]*sd.Converter),
		anchorLeads:      make(map[string]*sd.Converter),
		gateways:         make(map[params.Pair]*sd.Gateway),
		pairDemand:       make(map[params.Pair]sd.Node),
		products:         make(map[string]*productNodes),
		capacityProducts: make(map[string]string),
	}

	if err := m.buildGateways(); err != nil {
		return nil, err
	}
	for _, product := range b.Products {
		if err := m.buildProduct(product); err != nil {
			return nil, err
		}
	}
	if err := m.buildAnchorEntries(); err != nil {
		return nil, err
	}

	if err := m.Net.Finalize(); err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	if err := m.applyOverrides(b.Overrides); err != nil {
		return nil, err
	}
	return m, nil
}

func validateBundle(b *params.Bundle) error {
	if len(b.Sectors) == 0 {
		return fmt.Errorf("bundle: no sectors declared")
	}
	if len(b.Products) == 0 {
		return fmt.Errorf("bundle: no products declared")
	}
	known := make(map[string]bool, len(b.Sectors)+len(b.Products))
	for _, s := range b.Sectors {
		known["s:"+s] = true
	}
	for _, p := range b.Products {
		known["p:"+p] = true
	}
	for pr := range b.Coverage {
		if !known["s:"+pr.Sector] {
			return fmt.Errorf("coverage: unknown sector %q", pr.Sector)
		}
		if !known["p:"+pr.Product] {
			return fmt.Errorf("coverage: unknown product %q", pr.Product)
		}
	}
	if b.Mode == params.ModeStrictPair {
		return validateStrictPairs(b)
	}
	return nil
}

// validateStrictPairs requires the explicit pair list and the fixed
// strict-pair key set for every declared pair, enumerating missing
// (sector, product, key) triples with a capped list.
func validateStrictPairs(b *params.Bundle) error {
	if len(b.Pairs) == 0 {
		return fmt.Errorf("strict-pair mode: explicit pair list is required")
	}
	declared := make(map[params.Pair]bool, len(b.Pairs))
	for _, pr := range b.Pairs {
		declared[pr] = true
		if _, ok := b.Coverage[pr]; !ok {
			return fmt.Errorf("strict-pair mode: pair %s/%s has no coverage entry", pr.Sector, pr.Product)
		}
	}
	for pr := range b.Coverage {
		if !declared[pr] {
			return fmt.Errorf("strict-pair mode: covered pair %s/%s missing from the explicit pair list", pr.Sector, pr.Product)
		}
	}

	var missing []string
	total := 0
	for _, pr := range b.DeclaredPairs() {
		row := b.PairParams[pr]
		for _, key := range params.StrictPairKeys {
			if _, ok := row[key]; !ok {
				total++
				if len(missing) < maxMissingReported {
					missing = append(missing, fmt.Sprintf("%s/%s/%s", pr.Sector, pr.Product, key))
				}
			}
		}
	}
	if total > 0 {
		suffix := ""
		if total > len(missing) {
			suffix = fmt.Sprintf(" (showing first %d)", len(missing))
		}
		return fmt.Errorf("strict-pair mode: %d missing parameters: %s%s",
			total, strings.Join(missing, ", "), suffix)
	}
	return nil
}

// buildGateways registers one requirement gateway per covered pair and, in
// strict-pair mode, the optional requirement-lag delay between the gateway
// and the demand it feeds.
func (m *Model) buildGateways() error {
	for _, pr := range m.Bundle.DeclaredPairs() {
		g := m.Net.Gateway(gatewayName(pr))
		m.gateways[pr] = g

		var node sd.Node = g
		if m.Bundle.Mode == params.ModeStrictPair {
			lag, err := m.Bundle.PairParam(pr, params.KeyRequirementLag)
			if err != nil {
				return err
			}
			if lag > 0 {
				node = m.delayed(gatewayName(pr)+".lagged", g.Eval, lag)
			}
		}
		m.pairDemand[pr] = node
	}
	return nil
}

// delayed wraps a signal in the delay primitive, compensating for its
// one-step recording offset: the primitive answers with the value from
// lag+dt ago, so requesting max(0, lag-dt) delivers exactly lag.
func (m *Model) delayed(name string, input func(float64) float64, lag float64) *sd.Delay {
	adj := lag - m.Net.DT
	if adj < 0 {
		adj = 0
	}
	return m.Net.Delay(name, input, adj, 0)
}

// CreationSignal evaluates a creation key's accumulate-and-fire signal.
func (m *Model) CreationSignal(key string, t float64) float64 {
	return m.creation[key].Eval(t)
}

// SetGateway writes one pair's aggregated anchor requirement for this step.
func (m *Model) SetGateway(pr params.Pair, v float64) {
	m.gateways[pr].Set(v)
}

func gatewayName(pr params.Pair) string {
	return "g." + pr.Sector + "." + pr.Product + ".requirement"
}
