package market

import (
	"strings"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

// buildAnchorEntries wires the anchor-client entry side per creation key:
// lead generation gated on the start year, feeding an accumulate-and-fire
// accumulator whose fired signal tells the orchestrator how many agents to
// instantiate this step.
func (m *Model) buildAnchorEntries() error {
	b := m.Bundle
	if b.Mode == params.ModeStrictPair {
		for _, pr := range b.DeclaredPairs() {
			get := func(key string) (float64, error) { return b.PairParam(pr, key) }
			if err := m.buildAnchorEntry(pr.Key(), "s."+pr.Sector+"."+pr.Product, get); err != nil {
				return err
			}
		}
		return nil
	}
	for _, sector := range b.Sectors {
		get := func(key string) (float64, error) { return b.SectorParam(sector, key) }
		if err := m.buildAnchorEntry(sector, "s."+sector, get); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) buildAnchorEntry(key, prefix string, get func(string) (float64, error)) error {
	rate, err := get(params.KeyAnchorLeadRate)
	if err != nil {
		return err
	}
	startYear, err := get(params.KeyAnchorLeadStartYear)
	if err != nil {
		return err
	}

	rateConst := m.Net.Constant(prefix+"."+params.KeyAnchorLeadRate, rate)
	leads := m.Net.Converter(prefix+".anchor_leads", func(t float64) float64 {
		if t < startYear-1e-9 {
			return 0
		}
		return rateConst.Eval(t)
	}, rateConst.Name())

	acc, fired := sd.AccumulateAndFire(m.Net, prefix+".anchor", leads.Eval)
	m.anchorLeads[key] = leads
	m.creation[key] = fired
	m.accums = append(m.accums, acc)
	return nil
}

// SectorOf extracts the sector from a creation key (pair keys carry
// "sector|product").
func SectorOf(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}
