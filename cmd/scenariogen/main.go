// Command scenariogen generates a runnable scenario file with
// noise-smoothed capacity and price trajectories, for exercising the
// engine without hand-writing parameter tables.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/scenario"
)

func main() {
	out := flag.String("out", "scenario.yaml", "output scenario file")
	seed := flag.Int64("seed", 42, "noise seed")
	start := flag.Float64("start", 2025, "run start year")
	stop := flag.Float64("stop", 2032, "run stop year")
	sectors := flag.String("sectors", "automotive,industrial", "comma-separated sector names")
	products := flag.String("products", "sensor,controller", "comma-separated product names")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	f := generate(*seed, *start, *stop,
		strings.Split(*sectors, ","), strings.Split(*products, ","))

	if err := scenario.Save(*out, f); err != nil {
		slog.Error("write scenario failed", "error", err)
		os.Exit(1)
	}
	slog.Info("scenario written",
		"path", *out,
		"sectors", len(f.Sectors),
		"products", len(f.Products),
		"seed", *seed,
	)
}

func generate(seed int64, start, stop float64, sectors, products []string) *scenario.File {
	capNoise := opensimplex.NewNormalized(seed)
	priceNoise := opensimplex.NewNormalized(seed + 1)

	f := &scenario.File{Name: fmt.Sprintf("generated-%d", seed)}
	f.Run.Start = start
	f.Run.Stop = stop
	f.Run.DT = 0.25
	f.Sectors = sectors
	f.Products = products

	f.SectorParams = make(map[string]map[string]float64, len(sectors))
	for _, s := range sectors {
		f.SectorParams[s] = map[string]float64{
			params.KeyProjectGenerationRate: 1,
			params.KeyProjectDuration:       2,
			params.KeyProjectCountMax:       4,
			params.KeyActivationThreshold:   3,
			params.KeyActivationDelay:       0.25,
			params.KeyAnchorLeadRate:        4,
			params.KeyAnchorLeadStartYear:   start,
		}
	}

	f.ProductParams = make(map[string]map[string]float64, len(products))
	f.Capacity = make(map[string][]scenario.PointEntry, len(products))
	f.Price = make(map[string][]scenario.PointEntry, len(products))
	for i, p := range products {
		f.ProductParams[p] = map[string]float64{
			params.KeyDirectLeadRate:           8,
			params.KeyLeadConversionRate:       0.5,
			params.KeyLeadToRequirementDelay:   0.25,
			params.KeyBaseOrderRate:            10,
			params.KeyOrderGrowthRate:          0.1,
			params.KeyOrderGrowthCap:           2,
			params.KeyDeliveryDelay:            0.25,
			params.KeyInitialPhaseDuration:     2,
			params.KeyInitialRequirementRate:   100,
			params.KeyInitialRequirementGrowth: 0,
			params.KeyRampPhaseDuration:        4,
			params.KeyRampRequirementRate:      200,
			params.KeyRampRequirementGrowth:    0.1,
			params.KeySteadyRequirementRate:    350,
			params.KeySteadyRequirementGrowth:  0.05,
		}
		f.Capacity[p] = series(capNoise, float64(i), start, stop, 2000, 6000)
		f.Price[p] = series(priceNoise, float64(i), start, stop, 1.5, 4)
	}

	for _, s := range sectors {
		for _, p := range products {
			f.Coverage = append(f.Coverage, scenario.CoverageEntry{
				Sector: s, Product: p, StartYear: start,
			})
		}
	}
	return f
}

// series samples smooth noise once per year across [start, stop], mapped
// into [lo, hi]. The channel offset keeps product curves independent.
func series(noise opensimplex.Noise, channel, start, stop, lo, hi float64) []scenario.PointEntry {
	var pts []scenario.PointEntry
	for year := start; year <= stop; year++ {
		v := noise.Eval2((year-start)*0.35, channel*10)
		pts = append(pts, scenario.PointEntry{T: year, V: lo + v*(hi-lo)})
	}
	return pts
}
