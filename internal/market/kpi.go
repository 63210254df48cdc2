package market

import (
	"fmt"
	"sort"

	"github.com/talgya/demandsim/internal/params"
)

// CaptureKPIs reads every gateway-dependent metric at time t. It must run
// after the gateways are written and before the network advances; the same
// values become unreliable once the step commits.
func (m *Model) CaptureKPIs(t float64) map[string]float64 {
	b := m.Bundle
	dt := m.Net.DT
	out := make(map[string]float64, 8*len(b.Products)+2*len(b.Sectors)+6)

	var totalRevenue, anchorRevenue, directRevenue, totalDelivered float64
	for _, product := range b.Products {
		pn := m.products[product]
		price := pn.price.Eval(t)

		demand := pn.demand.Eval(t)
		delivered := pn.delivered.Eval(t)
		direct := pn.directDelivered.Eval(t)
		revenue := delivered * price
		revenueDirect := direct * price

		revenueAnchor := 0.0
		for _, sector := range b.CoveringSectors(product) {
			pairRev := pn.pairDelivered[sector].Eval(t) * price
			revenueAnchor += pairRev
			out["revenue."+sector+"."+product] = pairRev
		}

		out["demand."+product] = demand
		out["delivered."+product] = delivered
		out["fulfillment."+product] = pn.fulfillment.Eval(t)
		out["clients."+product] = pn.clients.Eval(t)
		out["leads."+product+".direct"] = pn.directLeads.Eval(t) * dt
		out["revenue."+product+".total"] = revenue
		out["revenue."+product+".anchor"] = revenueAnchor
		out["revenue."+product+".direct"] = revenueDirect

		totalRevenue += revenue
		anchorRevenue += revenueAnchor
		directRevenue += revenueDirect
		totalDelivered += delivered
	}

	sectorLeads := make(map[string]float64, len(b.Sectors))
	for _, key := range m.CreationKeys {
		sectorLeads[SectorOf(key)] += m.anchorLeads[key].Eval(t) * dt
	}
	for _, sector := range b.Sectors {
		out["leads."+sector+".anchor"] = sectorLeads[sector]
	}

	out["revenue.total"] = totalRevenue
	out["revenue.anchor.total"] = anchorRevenue
	out["revenue.direct.total"] = directRevenue
	out["delivered.total"] = totalDelivered
	return out
}

// RevenueComponents evaluates the revenue identity terms at time t:
// anchor-sourced, direct-sourced, and total delivered revenue.
func (m *Model) RevenueComponents(t float64) (anchor, direct, total float64) {
	for _, product := range m.Bundle.Products {
		pn := m.products[product]
		price := pn.price.Eval(t)
		total += pn.delivered.Eval(t) * price
		direct += pn.directDelivered.Eval(t) * price
		for _, sector := range m.Bundle.CoveringSectors(product) {
			anchor += pn.pairDelivered[sector].Eval(t) * price
		}
	}
	return anchor, direct, total
}

// FulfillmentRatio evaluates one product's capacity/demand ratio at t.
func (m *Model) FulfillmentRatio(product string, t float64) float64 {
	return m.products[product].fulfillment.Eval(t)
}

// Diagnostics runs the deeper structural checks sampled on the sparse
// schedule: accumulate-and-fire accumulators and cohort buckets must never
// go negative. A violation indicates a wiring defect, not a transient.
func (m *Model) Diagnostics(t float64) error {
	const tol = 1e-9
	for _, acc := range m.accums {
		if acc.Value() < -tol {
			return fmt.Errorf("diagnostics at t=%.4f: accumulator %q is negative (%g)", t, acc.Name(), acc.Value())
		}
	}
	for _, product := range m.Bundle.Products {
		for _, bk := range m.products[product].buckets {
			if bk.Value() < -tol {
				return fmt.Errorf("diagnostics at t=%.4f: cohort bucket %q is negative (%g)", t, bk.Name(), bk.Value())
			}
		}
	}
	return nil
}

// applyOverrides installs exact-name constant and lookup replacements,
// validated against the built network. Capacity lookups arrive as annual
// series and are re-converted to the per-step basis, matching construction.
func (m *Model) applyOverrides(ov params.Overrides) error {
	for _, name := range sortedKeys(ov.Constants) {
		if err := m.Net.OverrideConstant(name, ov.Constants[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(ov.Lookups) {
		pts := ov.Lookups[name]
		if _, isCapacity := m.capacityProducts[name]; isCapacity {
			pts = convertAnnual(pts, m.Net.StepsPerYear())
		}
		if err := m.Net.ReplaceLookup(name, pts); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](mp map[string]V) []string {
	keys := make([]string, 0, len(mp))
	for k := range mp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
