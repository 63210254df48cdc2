// Package agents implements the anchor-client lifecycle: deterministic
// state machines that run pilot projects, activate after enough
// completions, and emit per-product order requirements consumed by the
// demand network.
package agents

import (
	"math"

	"github.com/talgya/demandsim/internal/params"
	"github.com/talgya/demandsim/internal/sd"
)

const timeEps = 1e-9

// State is the anchor lifecycle position. Transitions are linear with no
// back-transitions; Active is terminal.
type State uint8

const (
	StatePotential State = iota
	StatePendingActivation
	StateActive
)

func (s State) String() string {
	switch s {
	case StatePotential:
		return "POTENTIAL"
	case StatePendingActivation:
		return "PENDING_ACTIVATION"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// RequirementParams describe one product's three-phase order schedule for
// an activated anchor: a fixed-length initial phase, a fixed-length ramp
// phase, then an unbounded steady phase. Each phase value is
// rate·(1+growth)^localIndex, keyed by integer quarters elapsed since
// activation.
type RequirementParams struct {
	// StartYear gates the requirement: zero until simulation time reaches
	// it, regardless of agent state.
	StartYear float64

	InitialDuration int // quarters
	InitialRate     float64
	InitialGrowth   float64

	RampDuration int // quarters
	RampRate     float64
	RampGrowth   float64

	SteadyRate   float64
	SteadyGrowth float64

	// Scale multiplies the emitted requirement (1 outside strict-pair
	// mode).
	Scale float64
}

// Params is the immutable per-anchor parameter set, shared by reference
// across every anchor a factory creates. Never mutated after construction.
type Params struct {
	// Key is the registry key: the sector name, or the pair key in
	// strict-pair mode.
	Key string

	ProjectRate         float64 // project starts per quarter
	ProjectSteps        int     // completion offset in steps
	ProjectMax          int     // lifetime cap on starts
	ActivationThreshold int     // completions required to activate
	ActivationDelay     float64 // years

	// Requirements maps each covered product to its schedule; products
	// holds the deterministic iteration order.
	Requirements map[string]RequirementParams
	products     []string
}

// Anchor is one deterministic anchor-client state machine. Identical
// parameters driven by an identical time sequence produce bit-identical
// transitions and outputs; there is no randomness anywhere.
type Anchor struct {
	p *Params

	state             State
	projectsStarted   int
	projectsCompleted int
	inflight          []int // remaining steps per in-flight project
	startAcc          float64
	activationTime    float64

	lastReq map[string]float64
}

// State returns the current lifecycle state.
func (a *Anchor) State() State { return a.state }

// ProjectsInFlight returns the number of unresolved pilot projects.
func (a *Anchor) ProjectsInFlight() int { return len(a.inflight) }

// ProjectsCompleted returns the lifetime completed-project count.
func (a *Anchor) ProjectsCompleted() int { return a.projectsCompleted }

// LastRequirements returns the per-product requirement computed by the
// most recent Act call. The map is reused across steps.
func (a *Anchor) LastRequirements() map[string]float64 { return a.lastReq }

// Act advances the anchor by exactly one step and returns its per-product
// requirement for that step in units per step. Calling Act twice for the
// same step double-advances the machine and is not supported. The returned
// map is owned by the anchor and valid until the next call.
func (a *Anchor) Act(t float64, step int, dt float64) map[string]float64 {
	switch a.state {
	case StatePotential:
		a.stepProjects(t, dt)
	case StatePendingActivation:
		if t >= a.activationTime-timeEps {
			a.state = StateActive
		}
	}

	for k := range a.lastReq {
		delete(a.lastReq, k)
	}
	if a.state != StateActive {
		return a.lastReq
	}

	quarters := int(math.Floor((t-a.activationTime)/params.Quarter + timeEps))
	if quarters < 0 {
		quarters = 0
	}
	for _, product := range a.p.products {
		rp := a.p.Requirements[product]
		if t < rp.StartYear-timeEps {
			continue
		}
		a.lastReq[product] = phaseValue(rp, quarters) * rp.Scale * (dt / params.Quarter)
	}
	return a.lastReq
}

// stepProjects resolves in-flight projects first, then possibly starts new
// ones, so a project started this step can never also complete this step.
func (a *Anchor) stepProjects(t, dt float64) {
	kept := a.inflight[:0]
	for _, rem := range a.inflight {
		rem--
		if rem <= 0 {
			a.projectsCompleted++
		} else {
			kept = append(kept, rem)
		}
	}
	a.inflight = kept

	a.startAcc += a.p.ProjectRate * (dt / params.Quarter)
	fired := int(sd.Floor(a.startAcc))
	a.startAcc -= float64(fired)
	starts := fired
	if remaining := a.p.ProjectMax - a.projectsStarted; starts > remaining {
		starts = remaining
	}
	for i := 0; i < starts; i++ {
		a.inflight = append(a.inflight, a.p.ProjectSteps)
	}
	a.projectsStarted += starts

	if a.projectsCompleted >= a.p.ActivationThreshold {
		a.activationTime = t + a.p.ActivationDelay
		a.state = StatePendingActivation
	}
}

func phaseValue(rp RequirementParams, quarters int) float64 {
	var rate, growth float64
	var local int
	switch {
	case quarters < rp.InitialDuration:
		rate, growth, local = rp.InitialRate, rp.InitialGrowth, quarters
	case quarters < rp.InitialDuration+rp.RampDuration:
		rate, growth, local = rp.RampRate, rp.RampGrowth, quarters-rp.InitialDuration
	default:
		rate, growth, local = rp.SteadyRate, rp.SteadyGrowth, quarters-rp.InitialDuration-rp.RampDuration
	}
	return rate * math.Pow(1+growth, float64(local))
}
