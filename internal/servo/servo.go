package servo

import (
	"errors"
	"math"
)

var (
	ErrBadDt        = errors.New("servo: dt must be positive")
	ErrNegativeGain = errors.New("servo: gains must be non-negative")
	ErrBadLimit     = errors.New("servo: limit must be positive")
)

// PID — регулятор с трапецеидальным интегралом и производной по обратной разности.
// Анти-windup в два этапа: шаг интеграла и сам накопитель ограничены ±Limit.
type PID struct {
	Kp, Ki, Kd float64
	Limit      float64

	Integral  float64
	LastError float64

	p, i, d float64
}

// NewPID создаёт регулятор; отрицательные коэффициенты и Limit <= 0 отклоняются.
func NewPID(kp, ki, kd, limit float64) (*PID, error) {
	if kp < 0 || ki < 0 || kd < 0 {
		return nil, ErrNegativeGain
	}
	if !(limit > 0) {
		return nil, ErrBadLimit
	}
	return &PID{Kp: kp, Ki: ki, Kd: kd, Limit: limit}, nil
}

// LoopGains — коэффициенты PI(D) для ФАПЧ второго порядка (тип II).
// tau — постоянная времени петли (ωn = 1/tau), damping — ζ, sampleRate — частота
// отсчётов в Гц, kd — заданный коэффициент производной.
func LoopGains(tau, damping, sampleRate, kd float64) (kp, ki float64) {
	wn := 1 / tau
	w0 := 2 * math.Pi * sampleRate
	scale := 1 + w0*kd
	ki = wn * wn / w0 * scale
	kp = wn / (w0 * damping) * scale
	return kp, ki
}

// Update обрабатывает отсчёт ошибки за интервал dt (секунды) и возвращает выход p+i+d.
func (c *PID) Update(dt, err float64) (float64, error) {
	if !(dt > 0) {
		return 0, ErrBadDt
	}
	c.p = c.Kp * err

	step := 0.5 * (err + c.LastError) * (dt * c.Ki)
	c.Integral += clamp(step, c.Limit)
	c.Integral = clamp(c.Integral, c.Limit)
	c.i = c.Integral

	c.d = clamp((err-c.LastError)*(c.Kd/dt), c.Limit)
	c.LastError = err
	return c.Output(), nil
}

// Output — последний выход регулятора.
func (c *PID) Output() float64 {
	return c.p + c.i + c.d
}

// Terms — последние слагаемые p, i, d.
func (c *PID) Terms() (p, i, d float64) {
	return c.p, c.i, c.d
}

// Force переводит регулятор в крайнее положение: p = d = 0, интеграл = ±Limit.
func (c *PID) Force(positive bool) {
	c.p, c.d = 0, 0
	if positive {
		c.Integral = c.Limit
	} else {
		c.Integral = -c.Limit
	}
	c.i = c.Integral
}

// Reset сбрасывает интеграл и последнюю ошибку
func (c *PID) Reset() {
	c.Integral = 0
	c.LastError = 0
	c.p, c.i, c.d = 0, 0, 0
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
