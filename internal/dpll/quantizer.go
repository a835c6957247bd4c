package dpll

import "math"

// Quantizer отображает выход регулятора [-Limit, +Limit] на код [0, 2^Bits−1].
// Если новое значение отличается от выданного кода не более чем на Hysteresis,
// остаётся прежний код.
type Quantizer struct {
	Bits       int
	Limit      float64
	Hysteresis float64

	last    uint32
	hasLast bool
}

// Max — наибольший код.
func (q *Quantizer) Max() uint32 {
	return uint32(math.Exp2(float64(q.Bits)) - 1)
}

// Mid — код середины диапазона (нулевой выход).
func (q *Quantizer) Mid() uint32 {
	return uint32(math.Exp2(float64(q.Bits - 1)))
}

// Quantize возвращает код и долю диапазона tune = out/(2·Limit) + 0.5.
func (q *Quantizer) Quantize(out float64) (code uint32, tune float64) {
	tune = out/(2*q.Limit) + 0.5
	raw := tune * math.Exp2(float64(q.Bits))
	if q.hasLast && math.Abs(raw-float64(q.last)) <= q.Hysteresis {
		return q.last, tune
	}
	r := math.Round(raw)
	switch {
	case r < 0 || math.IsNaN(r):
		code = 0
	case r > float64(q.Max()):
		code = q.Max()
	default:
		code = uint32(r)
	}
	q.last, q.hasLast = code, true
	return code, tune
}
