package sd

import "math"

// Delay returns its input's historical value offset by a fixed lag. The
// history sample for step i is recorded during the step-i Advance, so the
// newest sample visible while step i executes is one step old: a delay
// asked for lag L answers with the value from L+dt ago. Callers that need
// an exact lag must request max(0, L-dt).
type Delay struct {
	name     string
	input    func(t float64) float64
	lagSteps int
	initial  float64
	hist     []float64
}

func (d *Delay) Name() string { return d.name }

// Eval returns the recorded input from lagSteps+1 advances ago, or the
// initial value before history reaches that far back.
func (d *Delay) Eval(t float64) float64 {
	idx := len(d.hist) - 1 - d.lagSteps
	if idx < 0 {
		return d.initial
	}
	return d.hist[idx]
}

func (d *Delay) record(v float64) {
	d.hist = append(d.hist, v)
}

// Delay registers a named delay over the given input signal. The lag is
// rounded to whole steps.
func (n *Network) Delay(name string, input func(t float64) float64, lag, initial float64) *Delay {
	d := &Delay{
		name:     name,
		input:    input,
		lagSteps: int(math.Round(lag / n.DT)),
		initial:  initial,
		hist:     make([]float64, 0, n.Steps()),
	}
	if d.lagSteps < 0 {
		d.lagSteps = 0
	}
	if n.register(name) {
		n.delays[name] = d
		n.delayOrder = append(n.delayOrder, d)
	}
	return d
}
