package market

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

func testBundle() *params.Bundle {
	return &params.Bundle{
		Sectors:  []string{"automotive"},
		Products: []string{"sensor"},
		Coverage: map[params.Pair]params.Coverage{
			{Sector: "automotive", Product: "sensor"}: {StartYear: 2025},
		},
		SectorParams: params.Table{
			"automotive": {
				params.KeyProjectGenerationRate: 1,
				params.KeyProjectDuration:       2,
				params.KeyProjectCountMax:       3,
				params.KeyActivationThreshold:   2,
				params.KeyActivationDelay:       0.25,
				params.KeyAnchorLeadRate:        4,
				params.KeyAnchorLeadStartYear:   2025,
			},
		},
		ProductParams: params.Table{
			"sensor": {
				params.KeyDirectLeadRate:           0,
				params.KeyLeadConversionRate:       0,
				params.KeyLeadToRequirementDelay:   0,
				params.KeyBaseOrderRate:            10,
				params.KeyOrderGrowthRate:          0.1,
				params.KeyOrderGrowthCap:           1.5,
				params.KeyDeliveryDelay:            0,
				params.KeyInitialPhaseDuration:     2,
				params.KeyInitialRequirementRate:   100,
				params.KeyInitialRequirementGrowth: 0,
				params.KeyRampPhaseDuration:        2,
				params.KeyRampRequirementRate:      200,
				params.KeyRampRequirementGrowth:    0.1,
				params.KeySteadyRequirementRate:    300,
				params.KeySteadyRequirementGrowth:  0.05,
			},
		},
		Capacity: map[string][]sd.Point{
			"sensor": {{T: 2025, V: 400}, {T: 2030, V: 400}},
		},
		Price: map[string][]sd.Point{
			"sensor": {{T: 2025, V: 2}, {T: 2030, V: 2}},
		},
		Start: 2025,
		Stop:  2027,
		DT:    0.25,
	}
}

func TestBuildSucceeds(t *testing.T) {
	m, err := Build(testBundle())
	require.NoError(t, err)
	assert.Equal(t, []string{"automotive"}, m.CreationKeys)
	assert.Equal(t, 8, m.Net.Steps())
}

func TestMissingParameterNamesExactKey(t *testing.T) {
	b := testBundle()
	delete(b.ProductParams["sensor"], params.KeyOrderGrowthCap)
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), params.KeyOrderGrowthCap)
	assert.Contains(t, err.Error(), "sensor")
}

func TestMissingCapacityTable(t *testing.T) {
	b := testBundle()
	delete(b.Capacity, "sensor")
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
}

func TestUnknownCoverageEntries(t *testing.T) {
	b := testBundle()
	b.Coverage[params.Pair{Sector: "aviation", Product: "sensor"}] = params.Coverage{}
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aviation")
}

// A client seeded at start appears in bucket 0 at step 0, bucket 1 at step
// 1, and so on, contributing min(base·(1+g)^age, base·cap) each step.
func TestCohortAging(t *testing.T) {
	b := testBundle()
	b.Seed.DirectClients = map[string]float64{"sensor": 1}
	m, err := Build(b)
	require.NoError(t, err)

	pn := m.products["sensor"]
	for step := 0; step < m.Net.Steps(); step++ {
		tm := m.Net.Time()
		for age, bk := range pn.buckets {
			wantOccupied := 0.0
			if age == step {
				wantOccupied = 1.0
			}
			require.InDeltaf(t, wantOccupied, bk.Value(), 1e-9, "step %d bucket %d", step, age)
		}
		want := 10 * math.Min(math.Pow(1.1, float64(step)), 1.5)
		require.InDeltaf(t, want, pn.demand.Eval(tm), 1e-9, "step %d demand", step)
		m.Net.Advance()
	}
}

func TestCapacityAnnualToPerStepConversion(t *testing.T) {
	m, err := Build(testBundle())
	require.NoError(t, err)
	// 400 units per year across 4 steps per year.
	assert.InDelta(t, 100.0, m.products["sensor"].capacity.Eval(2025.5), 1e-12)
}

func TestCapacityOverrideRepeatsConversion(t *testing.T) {
	b := testBundle()
	b.Overrides.Lookups = map[string][]sd.Point{
		"p.sensor.capacity": {{T: 2025, V: 800}, {T: 2030, V: 800}},
	}
	m, err := Build(b)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, m.products["sensor"].capacity.Eval(2026), 1e-12)
}

func TestConstantOverride(t *testing.T) {
	b := testBundle()
	b.Overrides.Constants = map[string]float64{
		"p.sensor.direct_lead_rate": 12,
	}
	m, err := Build(b)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, m.products["sensor"].directLeads.Eval(2025), 1e-12)
}

func TestUnknownOverrideFails(t *testing.T) {
	b := testBundle()
	b.Overrides.Constants = map[string]float64{"no.such.constant": 1}
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no.such.constant")
}

func TestFulfillmentRatio(t *testing.T) {
	m, err := Build(testBundle())
	require.NoError(t, err)

	pr := params.Pair{Sector: "automotive", Product: "sensor"}

	// Zero demand: ratio is 1 by definition.
	assert.InDelta(t, 1.0, m.FulfillmentRatio("sensor", 2025), 1e-12)

	// Demand below per-step capacity (100): fully fulfilled.
	m.SetGateway(pr, 80)
	assert.InDelta(t, 1.0, m.FulfillmentRatio("sensor", 2025), 1e-12)

	// Demand above capacity: capped ratio.
	m.SetGateway(pr, 250)
	assert.InDelta(t, 0.4, m.FulfillmentRatio("sensor", 2025), 1e-12)
}

// The creation signal is a non-negative integer every step: 4 anchor leads
// per year at quarterly steps fire exactly one anchor per step once the
// accumulator fills.
func TestCreationSignalFiresWholeAnchors(t *testing.T) {
	m, err := Build(testBundle())
	require.NoError(t, err)

	total := 0.0
	for i := 0; i < m.Net.Steps(); i++ {
		sig := m.CreationSignal("automotive", m.Net.Time())
		require.GreaterOrEqual(t, sig, 0.0)
		require.InDelta(t, math.Round(sig), sig, 1e-9)
		total += sig
		m.Net.Advance()
	}
	// 4/year over 2 years = 8, minus the one-step accumulator fill lag.
	assert.InDelta(t, 7.0, total, 1e-9)
}

func TestAnchorLeadStartYearGate(t *testing.T) {
	b := testBundle()
	b.SectorParams["automotive"][params.KeyAnchorLeadStartYear] = 2026
	m, err := Build(b)
	require.NoError(t, err)

	for i := 0; i < m.Net.Steps(); i++ {
		tm := m.Net.Time()
		sig := m.CreationSignal("automotive", tm)
		if tm < 2026.25 {
			// Leads only start flowing at 2026; the first fired anchor
			// lands one step later.
			require.Zerof(t, sig, "step %d", i)
		}
		m.Net.Advance()
	}
}

func TestStrictPairValidationEnumeratesMissing(t *testing.T) {
	pr := params.Pair{Sector: "automotive", Product: "sensor"}
	b := testBundle()
	b.Mode = params.ModeStrictPair
	b.Pairs = []params.Pair{pr}
	b.PairParams = map[params.Pair]map[string]float64{
		pr: {params.KeyProjectGenerationRate: 1},
	}
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automotive/sensor/"+params.KeyProjectDuration)
	assert.Contains(t, err.Error(), params.KeyRequirementScale)
}

func TestStrictPairRequiresExplicitList(t *testing.T) {
	b := testBundle()
	b.Mode = params.ModeStrictPair
	_, err := Build(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pair list")
}

func TestDiagnosticsCleanAfterRun(t *testing.T) {
	m, err := Build(testBundle())
	require.NoError(t, err)
	for i := 0; i < m.Net.Steps(); i++ {
		m.Net.Advance()
	}
	require.NoError(t, m.Diagnostics(m.Net.Time()))
}
