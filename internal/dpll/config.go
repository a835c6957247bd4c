// Package dpll — цифровая ФАПЧ: фильтр ошибки фазы, PID, захват по большой ошибке,
// квантование кода подстройки VCXO с гистерезисом.
package dpll

import (
	"errors"
	"fmt"
	"math"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/config"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/servo"
)

var ErrBadConfig = errors.New("dpll: bad config")

// Config — неизменяемые параметры петли. Времена в секундах, частоты в Гц.
type Config struct {
	GateFreq    float64 // частота отсчётов (гейта)
	CounterFreq float64 // номинальная частота счётчика TDC

	TauDPLL float64 // постоянная времени петли, ωn = 1/TauDPLL
	Damping float64 // ζ
	Kd      float64
	TauLPF  float64 // постоянная времени ФНЧ ошибки

	Limit      float64 // половина диапазона подстройки VCXO (относительная частота)
	TuningBits int

	FastThreshold  float64 // порог захвата, доля периода гейта
	Hysteresis     float64 // мёртвая зона квантователя, единицы кода
	StepTestCycles int     // 0 — без ступенчатого теста
}

// Validate отклоняет неположительные времена и пределы и отрицательные коэффициенты.
func (c Config) Validate() error {
	switch {
	case !(c.GateFreq > 0):
		return fmt.Errorf("%w: gate frequency %v", ErrBadConfig, c.GateFreq)
	case !(c.CounterFreq > 0):
		return fmt.Errorf("%w: counter frequency %v", ErrBadConfig, c.CounterFreq)
	case !(c.TauDPLL > 0):
		return fmt.Errorf("%w: tau_dpll %v", ErrBadConfig, c.TauDPLL)
	case !(c.Damping > 0):
		return fmt.Errorf("%w: damping %v", ErrBadConfig, c.Damping)
	case c.Kd < 0:
		return fmt.Errorf("%w: kd %v: %w", ErrBadConfig, c.Kd, servo.ErrNegativeGain)
	case !(c.TauLPF > 0):
		return fmt.Errorf("%w: tau_lpf %v", ErrBadConfig, c.TauLPF)
	case !(c.Limit > 0):
		return fmt.Errorf("%w: limit %v: %w", ErrBadConfig, c.Limit, servo.ErrBadLimit)
	case c.TuningBits < 1 || c.TuningBits > 32:
		return fmt.Errorf("%w: tuning bits %d", ErrBadConfig, c.TuningBits)
	case !(c.FastThreshold > 0):
		return fmt.Errorf("%w: fast threshold %v", ErrBadConfig, c.FastThreshold)
	case c.Hysteresis < 0:
		return fmt.Errorf("%w: hysteresis %v", ErrBadConfig, c.Hysteresis)
	case c.StepTestCycles < 0:
		return fmt.Errorf("%w: step test cycles %d", ErrBadConfig, c.StepTestCycles)
	}
	return nil
}

// GatePeriod — период отсчётов, с.
func (c Config) GatePeriod() float64 {
	return 1 / c.GateFreq
}

// Gains — kp, ki для заданных ωn, ζ и kd.
func (c Config) Gains() (kp, ki float64) {
	return servo.LoopGains(c.TauDPLL, c.Damping, c.GateFreq, c.Kd)
}

// LPFAlpha — коэффициент экспоненциального ФНЧ: 1 − exp(−T/τ).
func (c Config) LPFAlpha() float64 {
	return 1 - math.Exp(-c.GatePeriod()/c.TauLPF)
}

// FromConfig собирает параметры петли из файла конфигурации.
func FromConfig(cfg *config.Config) (Config, error) {
	gate, err := cfg.TDC.GateHz()
	if err != nil {
		return Config{}, fmt.Errorf("tdc.gate_freq: %w", err)
	}
	counter, err := cfg.TDC.CounterHz()
	if err != nil {
		return Config{}, fmt.Errorf("tdc.counter_freq: %w", err)
	}
	d := cfg.DPLL
	c := Config{
		GateFreq:      gate,
		CounterFreq:   counter,
		TauDPLL:       d.TauDPLL,
		Damping:       d.Damping,
		Kd:            d.Kd,
		TauLPF:        d.TauLPF,
		Limit:         d.VCXOSpanPPM / 2 * 1e-6,
		TuningBits:    d.TuningBits,
		FastThreshold: d.FastThreshold,
		Hysteresis:    d.Hysteresis,
	}
	if d.StepTest {
		c.StepTestCycles = d.StepTestCycles
	}
	return c, c.Validate()
}
