package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricePerMlCents_RoundsUp(t *testing.T) {
	// 50000 cents/L divides exactly: 50 cents/ml
	assert.Equal(t, int64(50), PricePerMlCents(50000))
	// 12500 cents/L -> 12.5, rounds up to 13
	assert.Equal(t, int64(13), PricePerMlCents(12500))
	// sub-cent per ml still charges a full cent
	assert.Equal(t, int64(1), PricePerMlCents(1))
	assert.Equal(t, int64(1), PricePerMlCents(999))
	assert.Equal(t, int64(1), PricePerMlCents(1000))
	assert.Equal(t, int64(2), PricePerMlCents(1001))
}

func TestPricePerMlCents_NonPositive(t *testing.T) {
	assert.Equal(t, int64(0), PricePerMlCents(0))
	assert.Equal(t, int64(0), PricePerMlCents(-500))
}

func TestMaxVolumeML(t *testing.T) {
	// balance=1000, overdraft=0, price=50, safety=2 => floor(1000/50)-2 = 18
	assert.Equal(t, 18, MaxVolumeML(1000, 0, 50, 2))

	// floor applies before the safety margin: floor(1000/13)=76, minus 2
	assert.Equal(t, 74, MaxVolumeML(1000, 0, 13, 2))

	// overdraft extends the budget
	assert.Equal(t, 20, MaxVolumeML(900, 100, 50, 0))

	// clamp never goes negative
	assert.Equal(t, 0, MaxVolumeML(10, 0, 50, 2))
	assert.Equal(t, 0, MaxVolumeML(-100, 0, 50, 2))

	// zero price means no pour
	assert.Equal(t, 0, MaxVolumeML(1000, 0, 0, 2))
}

func TestRequiredCents(t *testing.T) {
	assert.Equal(t, int64(5000), RequiredCents(100, 50))
	assert.Equal(t, int64(0), RequiredCents(-5, 50))
}

func TestEvaluate_Allowed(t *testing.T) {
	d := Evaluate(1000, 50000, Knobs{MinStartML: 10, SafetyML: 2, AllowedOverdraftCents: 0})

	assert.True(t, d.Allowed)
	assert.Equal(t, int64(50), d.PricePerMlCents)
	assert.Equal(t, 18, d.MaxVolumeML)
	assert.Equal(t, int64(1000), d.BalanceCents)
}

func TestEvaluate_DeniedBelowMinStart(t *testing.T) {
	// balance=900, price=50 cents/ml => floor(900/50)-2 = 16 < min_start 20
	d := Evaluate(900, 50000, Knobs{MinStartML: 20, SafetyML: 2, AllowedOverdraftCents: 0})

	assert.False(t, d.Allowed)
	assert.Equal(t, 16, d.MaxVolumeML)
	assert.Equal(t, 20, d.MinStartML)
}

func TestEvaluate_DeniedOnZeroPrice(t *testing.T) {
	d := Evaluate(100000, 0, Knobs{MinStartML: 20, SafetyML: 2})

	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.PricePerMlCents)
	assert.Equal(t, 0, d.MaxVolumeML)
}

func TestEvaluate_ExactBoundary(t *testing.T) {
	// max volume exactly equals min start -> allowed
	// balance=1100, price=50 => floor(1100/50)-2 = 20
	d := Evaluate(1100, 50000, Knobs{MinStartML: 20, SafetyML: 2})

	assert.True(t, d.Allowed)
	assert.Equal(t, 20, d.MaxVolumeML)
}
