package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/demandsim/internal/market"
	"github.com/talgya/demandsim/internal/params"
)

const sampleYAML = `
name: baseline
run:
  start: 2025
  stop: 2027
  dt: 0.25
sectors: [automotive]
products: [sensor]
coverage:
  - {sector: automotive, product: sensor, start_year: 2025}
sector_params:
  automotive:
    project_generation_rate: 1
    project_duration: 2
    project_count_max: 3
    activation_threshold: 2
    activation_delay: 0.25
    anchor_lead_rate: 4
    anchor_lead_start_year: 2025
product_params:
  sensor:
    direct_lead_rate: 8
    lead_conversion_rate: 0.5
    lead_to_requirement_delay: 0.25
    base_order_rate: 10
    order_growth_rate: 0.1
    order_growth_cap: 1.5
    delivery_delay: 0.25
    initial_phase_duration: 2
    initial_requirement_rate: 100
    initial_requirement_growth: 0
    ramp_phase_duration: 2
    ramp_requirement_rate: 200
    ramp_requirement_growth: 0.1
    steady_requirement_rate: 300
    steady_requirement_growth: 0.05
capacity:
  sensor:
    - {t: 2025, v: 400}
    - {t: 2030, v: 400}
price:
  sensor:
    - {t: 2025, v: 2}
    - {t: 2030, v: 2}
overrides:
  constants:
    p.sensor.direct_lead_rate: 12
seed:
  direct_clients:
    sensor: 3
  active_anchors:
    automotive: {count: 2, elapsed_quarters: 4}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baseline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadBuildsBundle(t *testing.T) {
	b, name, err := Load(writeSample(t))
	require.NoError(t, err)
	assert.Equal(t, "baseline", name)
	assert.Equal(t, params.ModeSector, b.Mode)
	assert.Equal(t, []string{"automotive"}, b.Sectors)
	assert.InDelta(t, 0.25, b.DT, 1e-12)

	cov, ok := b.Coverage[params.Pair{Sector: "automotive", Product: "sensor"}]
	require.True(t, ok)
	assert.InDelta(t, 2025.0, cov.StartYear, 1e-12)

	require.Len(t, b.Capacity["sensor"], 2)
	assert.InDelta(t, 400.0, b.Capacity["sensor"][0].V, 1e-12)

	assert.InDelta(t, 12.0, b.Overrides.Constants["p.sensor.direct_lead_rate"], 1e-12)
	assert.InDelta(t, 3.0, b.Seed.DirectClients["sensor"], 1e-12)
	assert.Equal(t, 4, b.Seed.ActiveAnchors["automotive"].ElapsedQuarters)
}

// A loaded bundle passes full model construction.
func TestLoadedBundleBuilds(t *testing.T) {
	b, _, err := Load(writeSample(t))
	require.NoError(t, err)
	_, err = market.Build(b)
	require.NoError(t, err)
}

func TestLoadUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: {start: 2025, stop: 2026, dt: 0.25, mode: turbo}"), 0o644))
	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	var f File
	f.Name = "generated"
	f.Run.Start = 2025
	f.Run.Stop = 2026
	f.Run.DT = 0.25
	f.Sectors = []string{"automotive"}
	f.Products = []string{"sensor"}
	f.Capacity = map[string][]PointEntry{"sensor": {{T: 2025, V: 100}}}
	f.Price = map[string][]PointEntry{"sensor": {{T: 2025, V: 2}}}

	path := filepath.Join(t.TempDir(), "generated.yaml")
	require.NoError(t, Save(path, &f))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "generated")
	assert.Contains(t, string(raw), "sensor")
}
