// Anchor factories — one per sector (or sector×product pair), built once
// from the parameter bundle before the run loop starts. Missing required
// parameters surface here, never inside Act.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

// Factory produces fresh, deterministic anchors bound to one creation key.
type Factory struct {
	params *Params
}

// Params returns the factory's immutable parameter set.
func (f *Factory) Params() *Params { return f.params }

// New returns a fresh POTENTIAL anchor.
func (f *Factory) New() *Anchor {
	return &Anchor{
		p:       f.params,
		state:   StatePotential,
		lastReq: make(map[string]float64, len(f.params.products)),
	}
}

// NewActive returns an anchor seeded directly into ACTIVE at run start,
// optionally aged by whole quarters (its activation time is backdated so
// the phase schedule resumes mid-way).
func (f *Factory) NewActive(start float64, elapsedQuarters int) *Anchor {
	a := f.New()
	a.state = StateActive
	a.projectsStarted = f.params.ActivationThreshold
	a.projectsCompleted = f.params.ActivationThreshold
	a.activationTime = start - float64(elapsedQuarters)*params.Quarter
	return a
}

// FromBacklog converts a completed-project backlog into
// floor(backlog/threshold) immediately-ACTIVE anchors at run start. The
// fractional remainder below the threshold is discarded, not carried into
// any anchor's in-flight counter.
func (f *Factory) FromBacklog(backlog, start float64) []*Anchor {
	threshold := f.params.ActivationThreshold
	if threshold <= 0 || backlog <= 0 {
		return nil
	}
	count := int(sd.Floor(backlog / float64(threshold)))
	anchors := make([]*Anchor, 0, count)
	for i := 0; i < count; i++ {
		anchors = append(anchors, f.NewActive(start, 0))
	}
	return anchors
}

// BuildFactories constructs one factory per creation key from the bundle:
// per sector in sector mode, per declared pair in strict-pair mode.
func BuildFactories(b *params.Bundle) (map[string]*Factory, error) {
	out := make(map[string]*Factory)
	if b.Mode == params.ModeStrictPair {
		for _, pr := range b.DeclaredPairs() {
			f, err := pairFactory(b, pr)
			if err != nil {
				return nil, err
			}
			out[pr.Key()] = f
		}
		return out, nil
	}
	for _, sector := range b.Sectors {
		f, err := sectorFactory(b, sector)
		if err != nil {
			return nil, err
		}
		out[sector] = f
	}
	return out, nil
}

func sectorFactory(b *params.Bundle, sector string) (*Factory, error) {
	p, err := projectParams(sector, func(key string) (float64, error) {
		return b.SectorParam(sector, key)
	}, b.DT)
	if err != nil {
		return nil, err
	}
	for _, product := range b.CoveredProducts(sector) {
		rp, err := requirementParams(func(key string) (float64, error) {
			return b.ProductParam(product, key)
		})
		if err != nil {
			return nil, err
		}
		rp.StartYear = b.Coverage[params.Pair{Sector: sector, Product: product}].StartYear
		rp.Scale = 1
		p.Requirements[product] = rp
		p.products = append(p.products, product)
	}
	return &Factory{params: p}, nil
}

func pairFactory(b *params.Bundle, pr params.Pair) (*Factory, error) {
	get := func(key string) (float64, error) { return b.PairParam(pr, key) }
	p, err := projectParams(pr.Key(), get, b.DT)
	if err != nil {
		return nil, err
	}
	rp, err := requirementParams(get)
	if err != nil {
		return nil, err
	}
	scale, err := get(params.KeyRequirementScale)
	if err != nil {
		return nil, err
	}
	rp.StartYear = b.Coverage[pr].StartYear
	rp.Scale = scale
	p.Requirements[pr.Product] = rp
	p.products = append(p.products, pr.Product)
	return &Factory{params: p}, nil
}

func projectParams(key string, get func(string) (float64, error), dt float64) (*Params, error) {
	rate, err := get(params.KeyProjectGenerationRate)
	if err != nil {
		return nil, err
	}
	duration, err := get(params.KeyProjectDuration)
	if err != nil {
		return nil, err
	}
	maxProjects, err := get(params.KeyProjectCountMax)
	if err != nil {
		return nil, err
	}
	threshold, err := get(params.KeyActivationThreshold)
	if err != nil {
		return nil, err
	}
	delay, err := get(params.KeyActivationDelay)
	if err != nil {
		return nil, err
	}
	steps := int(math.Round(duration * params.Quarter / dt))
	if steps < 1 {
		steps = 1
	}
	if threshold < 1 {
		return nil, fmt.Errorf("%s: %s must be at least 1, got %g", key, params.KeyActivationThreshold, threshold)
	}
	return &Params{
		Key:                 key,
		ProjectRate:         rate,
		ProjectSteps:        steps,
		ProjectMax:          int(maxProjects),
		ActivationThreshold: int(threshold),
		ActivationDelay:     delay,
		Requirements:        make(map[string]RequirementParams),
	}, nil
}

func requirementParams(get func(string) (float64, error)) (RequirementParams, error) {
	var rp RequirementParams
	fields := []struct {
		key string
		dst *float64
	}{
		{params.KeyInitialRequirementRate, &rp.InitialRate},
		{params.KeyInitialRequirementGrowth, &rp.InitialGrowth},
		{params.KeyRampRequirementRate, &rp.RampRate},
		{params.KeyRampRequirementGrowth, &rp.RampGrowth},
		{params.KeySteadyRequirementRate, &rp.SteadyRate},
		{params.KeySteadyRequirementGrowth, &rp.SteadyGrowth},
	}
	for _, f := range fields {
		v, err := get(f.key)
		if err != nil {
			return rp, err
		}
		*f.dst = v
	}
	initDur, err := get(params.KeyInitialPhaseDuration)
	if err != nil {
		return rp, err
	}
	rampDur, err := get(params.KeyRampPhaseDuration)
	if err != nil {
		return rp, err
	}
	rp.InitialDuration = int(initDur)
	rp.RampDuration = int(rampDur)
	return rp, nil
}
