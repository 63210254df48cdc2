// Package scenario loads parameter bundles from YAML scenario files and
// writes them back out, for the command-line front ends. The engine itself
// only ever sees the in-memory bundle.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

// File is the on-disk scenario schema.
type File struct {
	Name string `yaml:"name"`

	Run struct {
		Start float64 `yaml:"start"`
		Stop  float64 `yaml:"stop"`
		DT    float64 `yaml:"dt"`
		Mode  string  `yaml:"mode,omitempty"` // "sector" (default) or "strict-pair"
	} `yaml:"run"`

	Sectors  []string        `yaml:"sectors"`
	Products []string        `yaml:"products"`
	Coverage []CoverageEntry `yaml:"coverage"`

	SectorParams  map[string]map[string]float64 `yaml:"sector_params,omitempty"`
	ProductParams map[string]map[string]float64 `yaml:"product_params"`
	PairParams    []PairParamsEntry             `yaml:"pair_params,omitempty"`

	Capacity map[string][]PointEntry `yaml:"capacity"`
	Price    map[string][]PointEntry `yaml:"price"`

	Overrides *OverridesEntry `yaml:"overrides,omitempty"`
	Seed      *SeedEntry      `yaml:"seed,omitempty"`
}

// CoverageEntry declares one covered sector×product pair.
type CoverageEntry struct {
	Sector    string  `yaml:"sector"`
	Product   string  `yaml:"product"`
	StartYear float64 `yaml:"start_year"`
}

// PairParamsEntry carries one pair's strict-mode parameter row.
type PairParamsEntry struct {
	Sector  string             `yaml:"sector"`
	Product string             `yaml:"product"`
	Params  map[string]float64 `yaml:"params"`
}

// PointEntry is one (time, value) sample.
type PointEntry struct {
	T float64 `yaml:"t"`
	V float64 `yaml:"v"`
}

// OverridesEntry replaces built network entities by exact name.
type OverridesEntry struct {
	Constants map[string]float64      `yaml:"constants,omitempty"`
	Lookups   map[string][]PointEntry `yaml:"lookups,omitempty"`
}

// SeedEntry declares initial conditions.
type SeedEntry struct {
	ActiveAnchors    map[string]SeededAnchorsEntry `yaml:"active_anchors,omitempty"`
	DirectClients    map[string]float64            `yaml:"direct_clients,omitempty"`
	CompletedBacklog map[string]float64            `yaml:"completed_backlog,omitempty"`
}

// SeededAnchorsEntry seeds pre-existing ACTIVE anchors.
type SeededAnchorsEntry struct {
	Count           int `yaml:"count"`
	ElapsedQuarters int `yaml:"elapsed_quarters,omitempty"`
}

// Load reads a scenario file and converts it to a parameter bundle,
// returning the scenario name alongside.
func Load(path string) (*params.Bundle, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read scenario: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, "", fmt.Errorf("parse scenario %s: %w", path, err)
	}
	b, err := f.Bundle()
	if err != nil {
		return nil, "", fmt.Errorf("scenario %s: %w", path, err)
	}
	return b, f.Name, nil
}

// Bundle converts the parsed file into the engine's parameter bundle.
func (f *File) Bundle() (*params.Bundle, error) {
	b := &params.Bundle{
		Sectors:       f.Sectors,
		Products:      f.Products,
		Coverage:      make(map[params.Pair]params.Coverage, len(f.Coverage)),
		SectorParams:  f.SectorParams,
		ProductParams: f.ProductParams,
		Capacity:      make(map[string][]sd.Point, len(f.Capacity)),
		Price:         make(map[string][]sd.Point, len(f.Price)),
		Start:         f.Run.Start,
		Stop:          f.Run.Stop,
		DT:            f.Run.DT,
	}

	switch f.Run.Mode {
	case "", "sector":
		b.Mode = params.ModeSector
	case "strict-pair":
		b.Mode = params.ModeStrictPair
	default:
		return nil, fmt.Errorf("unknown mode %q", f.Run.Mode)
	}

	for _, c := range f.Coverage {
		pr := params.Pair{Sector: c.Sector, Product: c.Product}
		b.Coverage[pr] = params.Coverage{StartYear: c.StartYear}
	}

	if len(f.PairParams) > 0 {
		b.PairParams = make(map[params.Pair]map[string]float64, len(f.PairParams))
		for _, e := range f.PairParams {
			pr := params.Pair{Sector: e.Sector, Product: e.Product}
			b.Pairs = append(b.Pairs, pr)
			b.PairParams[pr] = e.Params
		}
	}

	for product, pts := range f.Capacity {
		b.Capacity[product] = toPoints(pts)
	}
	for product, pts := range f.Price {
		b.Price[product] = toPoints(pts)
	}

	if f.Overrides != nil {
		b.Overrides.Constants = f.Overrides.Constants
		if len(f.Overrides.Lookups) > 0 {
			b.Overrides.Lookups = make(map[string][]sd.Point, len(f.Overrides.Lookups))
			for name, pts := range f.Overrides.Lookups {
				b.Overrides.Lookups[name] = toPoints(pts)
			}
		}
	}

	if f.Seed != nil {
		if len(f.Seed.ActiveAnchors) > 0 {
			b.Seed.ActiveAnchors = make(map[string]params.SeededAnchors, len(f.Seed.ActiveAnchors))
			for key, s := range f.Seed.ActiveAnchors {
				b.Seed.ActiveAnchors[key] = params.SeededAnchors{
					Count:           s.Count,
					ElapsedQuarters: s.ElapsedQuarters,
				}
			}
		}
		b.Seed.DirectClients = f.Seed.DirectClients
		b.Seed.CompletedBacklog = f.Seed.CompletedBacklog
	}
	return b, nil
}

func toPoints(entries []PointEntry) []sd.Point {
	out := make([]sd.Point, len(entries))
	for i, e := range entries {
		out[i] = sd.Point{T: e.T, V: e.V}
	}
	return out
}

// Save writes a scenario file.
func Save(path string, f *File) error {
	raw, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}
