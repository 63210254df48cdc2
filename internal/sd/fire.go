package sd

import "math"

// Floor truncates a non-negative accumulator value to its integer part.
// Implemented as round(x-0.5), valid because accumulators never go below
// zero by construction.
func Floor(x float64) float64 {
	return math.Round(x - 0.5)
}

// AccumulateAndFire wires the deterministic rate→events discretization: an
// accumulator stock fills from the continuous rate and drains
// (1/dt)·floor(acc) each step, so over one step the accumulator decreases
// by exactly the whole number of events that fired, with zero residual
// loss. The fired converter reads floor(acc) and is a non-negative integer
// every step when 1/dt is integral; for other step sizes the drain still
// conserves the time integral of the rate.
func AccumulateAndFire(n *Network, name string, rate func(t float64) float64) (*Stock, *Converter) {
	acc := n.Stock(name+".acc", 0)
	fired := n.Converter(name+".fired", func(t float64) float64 {
		return Floor(acc.Value())
	}, name+".acc")
	dt := n.DT
	acc.SetFlow(func(t float64) float64 {
		return rate(t) - Floor(acc.Value())/dt
	})
	return acc, fired
}
