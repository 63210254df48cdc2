package market

import (
	"fmt"
	"math"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

// buildProduct wires one product's direct-business chain and the shared
// demand/fulfillment/delivery/revenue converters all sectors feed into.
func (m *Model) buildProduct(product string) error {
	b := m.Bundle
	net := m.Net
	prefix := "p." + product + "."

	get := func(key string) (float64, error) { return b.ProductParam(product, key) }

	leadRate, err := get(params.KeyDirectLeadRate)
	if err != nil {
		return err
	}
	conversion, err := get(params.KeyLeadConversionRate)
	if err != nil {
		return err
	}
	leadLag, err := get(params.KeyLeadToRequirementDelay)
	if err != nil {
		return err
	}
	baseOrder, err := get(params.KeyBaseOrderRate)
	if err != nil {
		return err
	}
	orderGrowth, err := get(params.KeyOrderGrowthRate)
	if err != nil {
		return err
	}
	orderCap, err := get(params.KeyOrderGrowthCap)
	if err != nil {
		return err
	}
	deliveryLag, err := get(params.KeyDeliveryDelay)
	if err != nil {
		return err
	}

	pn := &productNodes{pairDelivered: make(map[string]sd.Node)}
	m.products[product] = pn

	// Direct lead generation and client conversion (per year).
	leadConst := net.Constant(prefix+params.KeyDirectLeadRate, leadRate)
	convConst := net.Constant(prefix+params.KeyLeadConversionRate, conversion)
	pn.directLeads = net.Converter(prefix+"direct_leads", func(t float64) float64 {
		return leadConst.Eval(t)
	}, leadConst.Name())
	pn.newClients = net.Converter(prefix+"new_clients", func(t float64) float64 {
		return pn.directLeads.Eval(t) * convConst.Eval(t)
	}, pn.directLeads.Name(), convConst.Name())

	// Cohort chain: one stock per age bucket, bounded to the run horizon.
	// Every bucket hands its entire content to the next each step; the
	// terminal bucket accumulates without outflow.
	pn.buckets = m.buildCohortChain(product, pn.newClients)

	// Per-client order value grows with cohort age, capped by the growth
	// ceiling. Precomputed per bucket; age index equals steps in bucket.
	orderValue := make([]float64, len(pn.buckets))
	for age := range orderValue {
		v := baseOrder * math.Pow(1+orderGrowth, float64(age))
		if ceil := baseOrder * orderCap; v > ceil {
			v = ceil
		}
		orderValue[age] = v
	}

	pn.clients = net.Converter(prefix+"clients", func(t float64) float64 {
		sum := 0.0
		for _, bk := range pn.buckets {
			sum += bk.Value()
		}
		return sum
	}, prefix+"clients.age0")

	stepScale := net.DT / params.Quarter
	rawDemand := net.Converter(prefix+"direct_demand_raw", func(t float64) float64 {
		sum := 0.0
		for age, bk := range pn.buckets {
			sum += bk.Value() * orderValue[age]
		}
		return sum * stepScale
	}, prefix+"clients.age0")

	// Lead-to-requirement lag between client acquisition and demand.
	if leadLag > 0 {
		pn.directDemand = m.delayed(prefix+"direct_demand", rawDemand.Eval, leadLag)
	} else {
		pn.directDemand = rawDemand
	}

	// Anchor demand: the sum of every covering sector's gateway.
	covering := b.CoveringSectors(product)
	pairNodes := make([]sd.Node, 0, len(covering))
	deps := make([]string, 0, len(covering))
	for _, sector := range covering {
		node := m.pairDemand[params.Pair{Sector: sector, Product: product}]
		pairNodes = append(pairNodes, node)
		deps = append(deps, node.Name())
	}
	pn.anchorDemand = net.Converter(prefix+"anchor_demand", func(t float64) float64 {
		sum := 0.0
		for _, node := range pairNodes {
			sum += node.Eval(t)
		}
		return sum
	}, deps...)

	pn.demand = net.Converter(prefix+"demand", func(t float64) float64 {
		return pn.directDemand.Eval(t) + pn.anchorDemand.Eval(t)
	}, pn.directDemand.Name(), pn.anchorDemand.Name())

	// Capacity arrives as an annual series and is held per step.
	capSeries, ok := b.Capacity[product]
	if !ok {
		return fmt.Errorf("product %q: missing capacity table", product)
	}
	capName := prefix + "capacity"
	pn.capacity = net.LookupTable(capName, convertAnnual(capSeries, net.StepsPerYear()))
	m.capacityProducts[capName] = product

	priceSeries, ok := b.Price[product]
	if !ok {
		return fmt.Errorf("product %q: missing price table", product)
	}
	pn.price = net.LookupTable(prefix+"price", priceSeries)

	pn.fulfillment = net.Converter(prefix+"fulfillment", func(t float64) float64 {
		d := pn.demand.Eval(t)
		if d <= 0 {
			return 1
		}
		r := pn.capacity.Eval(t) / d
		if r > 1 {
			return 1
		}
		return r
	}, pn.demand.Name(), capName)

	// Delivery: demand honored at the fulfillment ratio, delivered after
	// the product's delivery lag. Direct, per-pair, and total flows share
	// the lag so the revenue identity holds by linearity.
	pn.delivered = m.deliveredNode(prefix+"delivered", pn.demand, pn.fulfillment, deliveryLag)
	pn.directDelivered = m.deliveredNode(prefix+"direct_delivered", pn.directDemand, pn.fulfillment, deliveryLag)
	for _, sector := range covering {
		pr := params.Pair{Sector: sector, Product: product}
		name := "g." + sector + "." + product + ".delivered"
		pn.pairDelivered[sector] = m.deliveredNode(name, m.pairDemand[pr], pn.fulfillment, deliveryLag)
	}
	return nil
}

// deliveredNode delays fulfilled demand by the delivery lag, or passes it
// through when the lag is zero.
func (m *Model) deliveredNode(name string, demand sd.Node, ratio *sd.Converter, lag float64) sd.Node {
	fulfilled := func(t float64) float64 {
		return demand.Eval(t) * ratio.Eval(t)
	}
	if lag > 0 {
		return m.delayed(name, fulfilled, lag)
	}
	return m.Net.Converter(name, fulfilled, demand.Name(), ratio.Name())
}

// buildCohortChain registers the product's age-bucket stocks. New clients
// enter bucket 0; each bucket drains wholly into the next every step, an
// exact one-step age shift rather than exponential decay.
func (m *Model) buildCohortChain(product string, inflow *sd.Converter) []*sd.Stock {
	net := m.Net
	n := net.Steps()
	if n < 1 {
		n = 1
	}
	dt := net.DT
	buckets := make([]*sd.Stock, n)
	for age := 0; age < n; age++ {
		initial := 0.0
		if age == 0 {
			initial = m.Bundle.Seed.DirectClients[product]
		}
		buckets[age] = net.Stock(fmt.Sprintf("p.%s.clients.age%d", product, age), initial)
	}
	for age := 0; age < n; age++ {
		bk := buckets[age]
		switch {
		case age == 0 && n == 1:
			bk.SetFlow(func(t float64) float64 { return inflow.Eval(t) })
		case age == 0:
			bk.SetFlow(func(t float64) float64 {
				return inflow.Eval(t) - bk.Value()/dt
			})
		case age == n-1:
			prev := buckets[age-1]
			bk.SetFlow(func(t float64) float64 {
				return prev.Value() / dt
			})
		default:
			prev := buckets[age-1]
			bk.SetFlow(func(t float64) float64 {
				return prev.Value()/dt - bk.Value()/dt
			})
		}
	}
	return buckets
}

// convertAnnual rescales an annual capacity series to a per-step basis.
func convertAnnual(pts []sd.Point, stepsPerYear int) []sd.Point {
	out := make([]sd.Point, len(pts))
	for i, p := range pts {
		out[i] = sd.Point{T: p.T, V: p.V / float64(stepsPerYear)}
	}
	return out
}
