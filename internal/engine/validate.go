// Stateless consistency checks evaluated at a single instant. A violation
// indicates a wiring or construction defect, never a transient condition,
// so every failure is fatal and unretried.
package engine

import (
	"fmt"
	"math"
)

const (
	// signalTol bounds both the sign and the integral residual of
	// creation signals.
	signalTol = 1e-9
	// ratioTol bounds fulfillment ratio excursions outside [0, 1].
	ratioTol = 1e-12
	// revenueTol scales with the combined revenue magnitude.
	revenueTol = 1e-8
)

// CheckCreationSignal verifies an agent-creation signal is a non-negative
// integer within tolerance.
func CheckCreationSignal(key string, t, v float64) error {
	if v < -signalTol {
		return fmt.Errorf("creation signal %q at t=%.4f: negative value %g", key, t, v)
	}
	if math.Abs(v-math.Round(v)) > signalTol {
		return fmt.Errorf("creation signal %q at t=%.4f: non-integer value %g", key, t, v)
	}
	return nil
}

// CheckFulfillmentRatio verifies a product's fulfillment ratio stays in
// [0, 1] within tolerance.
func CheckFulfillmentRatio(product string, t, r float64) error {
	if r < -ratioTol || r > 1+ratioTol {
		return fmt.Errorf("fulfillment ratio for product %q at t=%.4f: %g outside [0, 1]", product, t, r)
	}
	return nil
}

// CheckRevenueIdentity verifies anchor-sourced plus direct-sourced revenue
// equals total revenue within 1e-8 scaled by magnitude.
func CheckRevenueIdentity(t, anchor, direct, total float64) error {
	combined := anchor + direct
	tol := revenueTol * math.Max(1, math.Abs(combined))
	if math.Abs(combined-total) > tol {
		return fmt.Errorf("revenue identity at t=%.4f: anchor %g + direct %g = %g, but total is %g",
			t, anchor, direct, combined, total)
	}
	return nil
}
