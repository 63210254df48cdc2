package sd

import "fmt"

// Point is one (time, value) sample of a lookup table.
type Point struct {
	T float64
	V float64
}

// Lookup is an ordered (time, value) table, linearly interpolated inside
// its domain and holding the nearest endpoint value outside it. Tables are
// replaceable wholesale via Network.ReplaceLookup.
type Lookup struct {
	name string
	pts  []Point

	warnedLow  bool
	warnedHigh bool
}

func (l *Lookup) Name() string { return l.name }

// Domain returns the first and last sample times.
func (l *Lookup) Domain() (lo, hi float64) {
	return l.pts[0].T, l.pts[len(l.pts)-1].T
}

// Eval interpolates the table at x, holding the nearest endpoint outside
// the domain.
func (l *Lookup) Eval(x float64) float64 {
	pts := l.pts
	if x <= pts[0].T {
		return pts[0].V
	}
	last := len(pts) - 1
	if x >= pts[last].T {
		return pts[last].V
	}
	for i := 1; i <= last; i++ {
		if x <= pts[i].T {
			a, b := pts[i-1], pts[i]
			frac := (x - a.T) / (b.T - a.T)
			return a.V + frac*(b.V-a.V)
		}
	}
	return pts[last].V
}

// Points returns a copy of the current table.
func (l *Lookup) Points() []Point {
	out := make([]Point, len(l.pts))
	copy(out, l.pts)
	return out
}

func validatePoints(name string, pts []Point) error {
	if len(pts) == 0 {
		return fmt.Errorf("lookup %q: empty table", name)
	}
	for i, p := range pts {
		if p.T < 0 {
			return fmt.Errorf("lookup %q: negative time %g at index %d", name, p.T, i)
		}
		if i > 0 && p.T <= pts[i-1].T {
			return fmt.Errorf("lookup %q: times must be strictly increasing, got %g after %g", name, p.T, pts[i-1].T)
		}
	}
	return nil
}

// LookupTable registers a named lookup table.
func (n *Network) LookupTable(name string, pts []Point) *Lookup {
	if err := validatePoints(name, pts); err != nil {
		n.errs = append(n.errs, err)
	}
	l := &Lookup{name: name, pts: append([]Point(nil), pts...)}
	if n.register(name) {
		n.lookups[name] = l
		n.lookupOrder = append(n.lookupOrder, l)
	}
	return l
}
