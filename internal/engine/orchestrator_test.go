package engine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/demandsim/internal/market"
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
				params.KeyActivationThreshold:   3,
				params.KeyActivationDelay:       0.25,
				params.KeyAnchorLeadRate:        4,
				params.KeyAnchorLeadStartYear:   2025,
			},
		},
		ProductParams: params.Table{
			"sensor": {
				params.KeyDirectLeadRate:           8,
				params.KeyLeadConversionRate:       0.5,
				params.KeyLeadToRequirementDelay:   0.25,
				params.KeyBaseOrderRate:            10,
				params.KeyOrderGrowthRate:          0.1,
				params.KeyOrderGrowthCap:           1.5,
				params.KeyDeliveryDelay:            0.25,
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
		Stop:  2028,
		DT:    0.25,
	}
}

func run(t *testing.T, b *params.Bundle) *Result {
	t.Helper()
	m, err := market.Build(b)
	require.NoError(t, err)
	o, err := New(m, WithLogger(slog.Default()))
	require.NoError(t, err)
	res, err := o.Run()
	require.NoError(t, err)
	return res
}

// A single step with all gateway inputs at zero, no seeded agents, and all
// direct lead generation zeroed yields zero revenue, leads, and delivery.
func TestSingleStepAllZero(t *testing.T) {
	b := testBundle()
	b.Stop = b.Start + 0.25
	b.ProductParams["sensor"][params.KeyDirectLeadRate] = 0
	b.SectorParams["automotive"][params.KeyAnchorLeadStartYear] = 2100

	res := run(t, b)
	require.Len(t, res.Snapshots, 1)
	snap := res.Snapshots[0]
	assert.Zero(t, snap.Values["revenue.total"])
	assert.Zero(t, snap.Values["leads.automotive.anchor"])
	assert.Zero(t, snap.Values["delivered.sensor"])
	assert.Zero(t, snap.Values["demand.sensor"])
}

func TestFullRunProducesDemandAndRevenue(t *testing.T) {
	res := run(t, testBundle())
	require.Len(t, res.Snapshots, 12)

	assert.Greater(t, res.Total("revenue.total"), 0.0)
	assert.Greater(t, res.Total("revenue.direct.total"), 0.0)
	assert.Greater(t, res.Total("revenue.anchor.total"), 0.0)
	assert.Greater(t, res.Final().Values["anchors.active.total"], 0.0)

	// Snapshots are ordered and indexed by step.
	for i, s := range res.Snapshots {
		assert.Equal(t, i, s.Step)
		assert.InDelta(t, 2025+float64(i)*0.25, s.Time, 1e-12)
	}
}

// Two independently constructed, identically parameterized runs produce
// identical snapshots at every step.
func TestRunDeterminism(t *testing.T) {
	r1 := run(t, testBundle())
	r2 := run(t, testBundle())
	require.Equal(t, len(r1.Snapshots), len(r2.Snapshots))
	for i := range r1.Snapshots {
		require.Equalf(t, r1.Snapshots[i].Values, r2.Snapshots[i].Values, "step %d", i)
	}
}

func TestSeededActiveAnchors(t *testing.T) {
	b := testBundle()
	b.SectorParams["automotive"][params.KeyAnchorLeadStartYear] = 2100
	b.Seed.ActiveAnchors = map[string]params.SeededAnchors{
		"automotive": {Count: 2, ElapsedQuarters: 4},
	}
	res := run(t, b)
	assert.InDelta(t, 2.0, res.Snapshots[0].Values["anchors.active.total"], 1e-12)
	// Two aged anchors are in steady phase immediately: demand flows from
	// the first step.
	assert.Greater(t, res.Snapshots[0].Values["demand.sensor"], 0.0)
}

// Completed backlog of 7 with threshold 3 seeds exactly 2 immediately
// ACTIVE anchors; the remaining 1 is discarded.
func TestBacklogSeeding(t *testing.T) {
	b := testBundle()
	b.SectorParams["automotive"][params.KeyAnchorLeadStartYear] = 2100
	b.Seed.CompletedBacklog = map[string]float64{"automotive": 7}

	res := run(t, b)
	assert.InDelta(t, 2.0, res.Snapshots[0].Values["anchors.active.total"], 1e-12)
}

func TestSeedUnknownKeyFails(t *testing.T) {
	b := testBundle()
	b.Seed.ActiveAnchors = map[string]params.SeededAnchors{"aviation": {Count: 1}}
	m, err := market.Build(b)
	require.NoError(t, err)
	_, err = New(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aviation")
}

func TestAnchorsCreatedFromCreationSignal(t *testing.T) {
	b := testBundle()
	res := run(t, b)
	// 4 anchor leads per year for 3 years, one-step fill lag: 11 agents
	// created; with 3 two-quarter projects and threshold 3, the earliest
	// ones are active well before the horizon ends.
	final := res.Final()
	assert.Greater(t, final.Values["anchors.automotive.active"], 0.0)
	assert.GreaterOrEqual(t, final.Values["projects.automotive.inflight"], 0.0)
}

func TestStrictPairRun(t *testing.T) {
	pr := params.Pair{Sector: "automotive", Product: "sensor"}
	b := testBundle()
	b.Mode = params.ModeStrictPair
	b.Pairs = []params.Pair{pr}
	b.PairParams = map[params.Pair]map[string]float64{
		pr: {
			params.KeyProjectGenerationRate:    1,
			params.KeyProjectDuration:          2,
			params.KeyProjectCountMax:          3,
			params.KeyActivationThreshold:      3,
			params.KeyActivationDelay:          0.25,
			params.KeyAnchorLeadRate:           4,
			params.KeyAnchorLeadStartYear:      2025,
			params.KeyInitialPhaseDuration:     2,
			params.KeyInitialRequirementRate:   100,
			params.KeyInitialRequirementGrowth: 0,
			params.KeyRampPhaseDuration:        2,
			params.KeyRampRequirementRate:      200,
			params.KeyRampRequirementGrowth:    0.1,
			params.KeySteadyRequirementRate:    300,
			params.KeySteadyRequirementGrowth:  0.05,
			params.KeyRequirementLag:           0.5,
			params.KeyRequirementScale:         1,
		},
	}
	res := run(t, b)
	assert.Greater(t, res.Total("revenue.anchor.total"), 0.0)
	assert.Greater(t, res.Final().Values["anchors.active.total"], 0.0)
}

func TestCheckCreationSignal(t *testing.T) {
	assert.NoError(t, CheckCreationSignal("automotive", 2025, 0))
	assert.NoError(t, CheckCreationSignal("automotive", 2025, 3))
	assert.NoError(t, CheckCreationSignal("automotive", 2025, 2+5e-10))

	err := CheckCreationSignal("automotive", 2025, -0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")

	err = CheckCreationSignal("automotive", 2025, 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-integer")
}

func TestCheckFulfillmentRatio(t *testing.T) {
	assert.NoError(t, CheckFulfillmentRatio("sensor", 2025, 0))
	assert.NoError(t, CheckFulfillmentRatio("sensor", 2025, 1))
	assert.NoError(t, CheckFulfillmentRatio("sensor", 2025, 0.37))
	assert.Error(t, CheckFulfillmentRatio("sensor", 2025, -0.01))
	assert.Error(t, CheckFulfillmentRatio("sensor", 2025, 1.01))
}

func TestCheckRevenueIdentity(t *testing.T) {
	assert.NoError(t, CheckRevenueIdentity(2025, 100, 50, 150))
	assert.NoError(t, CheckRevenueIdentity(2025, 0, 0, 0))
	assert.NoError(t, CheckRevenueIdentity(2025, 100, 50, 150+1e-6))

	err := CheckRevenueIdentity(2025, 100, 50, 151)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revenue identity")
}
