package model

import "math"

// DefaultNucThreshold is the default nucleation threshold: the fraction of the switchable
// response that must have switched for the nucleation bias.
const DefaultNucThreshold = 0.03

// Switching are the physical switching parameters of one loop.
type Switching struct {
	VPlus                  float64 // positive coercive bias, a3
	VMinus                 float64 // negative coercive bias, a2
	Imprint                float64
	RPlus                  float64
	RMinus                 float64
	SwitchablePolarization float64
	WorkOfSwitching        float64
	NucleationBias1        float64
	NucleationBias2        float64
}

// Record returns the parameters in format.SwitchingLayout field order.
func (s Switching) Record() []float64 {
	return []float64{
		s.VPlus, s.VMinus, s.Imprint, s.RPlus, s.RMinus,
		s.SwitchablePolarization, s.WorkOfSwitching,
		s.NucleationBias1, s.NucleationBias2,
	}
}

// SwitchingOf computes the switching parameters of one coefficient set.
//
// Nucleation bias 1 is where the branch switching at a2 has left the upper state by
// nucThreshold of the switchable response; nucleation bias 2 is where the branch switching at
// a3 has left the lower state by the same fraction. Thresholds outside the reach of the error
// function yield NaN or infinite nucleation biases.
func SwitchingOf(c Coefficients, nucThreshold float64) Switching {
	a0, a1, a2, a3 := c[A0], c[A1], c[A2], c[A3]
	b0, b1, b2, b3 := c[B0], c[B1], c[B2], c[B3]

	return Switching{
		VPlus:                  a3,
		VMinus:                 a2,
		Imprint:                (a2 + a3) / 2,
		RPlus:                  a0 + a1,
		RMinus:                 a0,
		SwitchablePolarization: a1,
		WorkOfSwitching:        math.Abs(a3-a2) * math.Abs(a1),
		NucleationBias1:        a2 + b1*math.Erfinv(((1-nucThreshold)*(b0+b1)-b0)/b1),
		NucleationBias2:        a3 + b2*math.Erfinv((nucThreshold*(b2+b3)-b2)/b2),
	}
}

// ExtractSwitching computes the switching parameters of every record. It is a pure function.
func ExtractSwitching(records []Record, nucThreshold float64) []Switching {
	out := make([]Switching, len(records))
	for i, r := range records {
		out[i] = SwitchingOf(r.Coef, nucThreshold)
	}

	return out
}
