package params

// Sector-level anchor parameters (per-pair in strict-pair mode).
const (
	KeyProjectGenerationRate = "project_generation_rate" // pilot project starts per quarter
	KeyProjectDuration       = "project_duration"        // quarters until a project completes
	KeyProjectCountMax       = "project_count_max"       // lifetime cap on project starts
	KeyActivationThreshold   = "activation_threshold"    // completed projects required to activate
	KeyActivationDelay       = "activation_delay"        // years between threshold and ACTIVE
	KeyAnchorLeadRate        = "anchor_lead_rate"        // potential anchors per year
	KeyAnchorLeadStartYear   = "anchor_lead_start_year"  // gate on anchor lead generation
)

// Product-level direct-business parameters.
const (
	KeyDirectLeadRate         = "direct_lead_rate"          // leads per year
	KeyLeadConversionRate     = "lead_conversion_rate"      // leads → clients fraction
	KeyLeadToRequirementDelay = "lead_to_requirement_delay" // years from client to demand
	KeyBaseOrderRate          = "base_order_rate"           // units per client per quarter
	KeyOrderGrowthRate        = "order_growth_rate"         // per-age growth of order size
	KeyOrderGrowthCap         = "order_growth_cap"          // multiplier ceiling on order growth
	KeyDeliveryDelay          = "delivery_delay"            // years from demand to delivery
)

// Requirement-phase parameters: product table in sector mode, pair table
// in strict-pair mode. Phase values are rate·(1+growth)^localIndex units
// per quarter, indexed by integer quarters inside the phase.
const (
	KeyInitialPhaseDuration     = "initial_phase_duration" // quarters
	KeyInitialRequirementRate   = "initial_requirement_rate"
	KeyInitialRequirementGrowth = "initial_requirement_growth"
	KeyRampPhaseDuration        = "ramp_phase_duration" // quarters
	KeyRampRequirementRate      = "ramp_requirement_rate"
	KeyRampRequirementGrowth    = "ramp_requirement_growth"
	KeySteadyRequirementRate    = "steady_requirement_rate"
	KeySteadyRequirementGrowth  = "steady_requirement_growth"
)

// Strict-pair-only parameters.
const (
	KeyRequirementLag   = "requirement_lag"   // years between stated requirement and demand
	KeyRequirementScale = "requirement_scale" // multiplier on the pair's requirement
)

// StrictPairKeys is the fixed set every declared pair must provide in
// strict-pair mode.
var StrictPairKeys = []string{
	KeyProjectGenerationRate,
	KeyProjectDuration,
	KeyProjectCountMax,
	KeyActivationThreshold,
	KeyActivationDelay,
	KeyAnchorLeadRate,
	KeyAnchorLeadStartYear,
	KeyInitialPhaseDuration,
	KeyInitialRequirementRate,
	KeyInitialRequirementGrowth,
	KeyRampPhaseDuration,
	KeyRampRequirementRate,
	KeyRampRequirementGrowth,
	KeySteadyRequirementRate,
	KeySteadyRequirementGrowth,
	KeyRequirementLag,
	KeyRequirementScale,
}
