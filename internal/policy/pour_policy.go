// Package policy is the pure pour clamp calculation: no I/O, integer cents
// and milliliters only. Callers load balances and knobs, this package only
// does the arithmetic.
package policy

const mlPerLiter = 1000

// Knobs operator-tunable clamp parameters (system_states table)
type Knobs struct {
	MinStartML            int
	SafetyML              int
	AllowedOverdraftCents int64
}

// Decision the evaluated clamp for one authorization attempt
type Decision struct {
	Allowed               bool
	PricePerMlCents       int64
	MaxVolumeML           int
	BalanceCents          int64
	AllowedOverdraftCents int64
	SafetyML              int
	MinStartML            int
}

// PricePerMlCents converts a per-liter price to a per-ml price in cents,
// rounding up so an indivisible cent is never under-charged. Always >= 1
// for a positive input; 0 for a non-positive input (callers must treat
// that as a configuration error, not a free pour).
func PricePerMlCents(priceCentsPerLiter int64) int64 {
	if priceCentsPerLiter <= 0 {
		return 0
	}
	ppu := (priceCentsPerLiter + mlPerLiter - 1) / mlPerLiter
	if ppu < 1 {
		ppu = 1
	}
	return ppu
}

// MaxVolumeML computes the largest volume the guest can afford:
// floor((balance + overdraft) / price) minus the safety margin, never
// negative.
func MaxVolumeML(balanceCents, allowedOverdraftCents, pricePerMlCents int64, safetyML int) int {
	if pricePerMlCents <= 0 {
		return 0
	}
	budget := balanceCents + allowedOverdraftCents
	if budget < 0 {
		return 0
	}
	gross := budget / pricePerMlCents
	if safetyML < 0 {
		safetyML = 0
	}
	maxML := int(gross) - safetyML
	if maxML < 0 {
		maxML = 0
	}
	return maxML
}

// RequiredCents is the exact charge for a metered volume
func RequiredCents(volumeML int, pricePerMlCents int64) int64 {
	if volumeML < 0 {
		volumeML = 0
	}
	if pricePerMlCents < 0 {
		pricePerMlCents = 0
	}
	return int64(volumeML) * pricePerMlCents
}

// Evaluate runs the full clamp for one authorization attempt. The pour is
// allowed when the affordable volume reaches the minimum start threshold.
func Evaluate(balanceCents, priceCentsPerLiter int64, knobs Knobs) Decision {
	ppu := PricePerMlCents(priceCentsPerLiter)
	maxML := MaxVolumeML(balanceCents, knobs.AllowedOverdraftCents, ppu, knobs.SafetyML)

	return Decision{
		Allowed:               ppu > 0 && maxML >= knobs.MinStartML,
		PricePerMlCents:       ppu,
		MaxVolumeML:           maxML,
		BalanceCents:          balanceCents,
		AllowedOverdraftCents: knobs.AllowedOverdraftCents,
		SafetyML:              knobs.SafetyML,
		MinStartML:            knobs.MinStartML,
	}
}
