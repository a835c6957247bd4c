package dpll

import (
	"math"
	"time"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/regs"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/servo"
)

// Mode — режим делителя гейта (младший полубайт TDC_CON).
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeFaster
	ModeSlower
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFaster:
		return "faster"
	case ModeSlower:
		return "slower"
	default:
		return "unknown"
	}
}

// TDCCon — значение регистра TDC_CON для режима: TDC и делитель измерения включены всегда.
func (m Mode) TDCCon() uint32 {
	v := uint32(regs.TDCConEn | regs.TDCConMeasDivEn)
	switch m {
	case ModeFaster:
		v |= regs.TDCConGateFInc
	case ModeSlower:
		v |= regs.TDCConGateFDec
	}
	return v
}

const (
	// lockCycles — сколько подряд отсчётов ошибка должна быть в пределах lockFraction порога.
	lockCycles   = 100
	lockFraction = 0.1
)

// Output — результат одного такта петли.
type Output struct {
	Time      float64 // виртуальное время, с
	Valid     bool
	ErrCycles int64   // сырая ошибка, такты счётчика
	RelError  float64 // отфильтрованная ошибка, доля периода гейта
	Phase     float64 // рад
	P, I, D   float64
	Tune      float64 // доля диапазона подстройки 0..1
	Code      uint32
	Mode      Mode
	StepTest  bool
	Locked    bool
	Drift     float64 // оценка ухода частоты по LinReg
}

// Controller — состояние петли. Не потокобезопасен: Step вызывается из цикла чтения.
type Controller struct {
	cfg   Config
	pid   *servo.PID
	q     Quantizer
	drift *servo.LinReg
	alpha float64

	t          float64
	lastValidT float64
	filt       float64
	filtInit   bool
	relErr     float64
	phase      float64
	mode       Mode
	stepLeft   int
	lockCount  int
	driftEst   float64 // 0, пока окно LinReg не заполнено
}

// NewController проверяет конфиг и выводит коэффициенты PID.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kp, ki := cfg.Gains()
	pid, err := servo.NewPID(kp, ki, cfg.Kd, cfg.Limit)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:   cfg,
		pid:   pid,
		q:     Quantizer{Bits: cfg.TuningBits, Limit: cfg.Limit, Hysteresis: cfg.Hysteresis},
		drift: servo.NewLinReg(),
		alpha: cfg.LPFAlpha(),
	}
	c.StartStepTest(cfg.StepTestCycles)
	return c, nil
}

// Config — параметры петли.
func (c *Controller) Config() Config {
	return c.cfg
}

// MidCode — код середины диапазона подстройки.
func (c *Controller) MidCode() uint32 {
	return c.q.Mid()
}

// StartStepTest принудительно держит выход на +Limit следующие cycles тактов.
// Повторный вызов перезапускает отсчёт; 0 прерывает тест.
func (c *Controller) StartStepTest(cycles int) {
	if cycles < 0 {
		cycles = 0
	}
	c.stepLeft = cycles
}

// Step обрабатывает один интервал гейта. ok == false — наблюдения нет:
// фильтр и регулятор сохраняют состояние, режим и ступенчатый тест продолжают отсчёт.
func (c *Controller) Step(errCycles int64, ok bool) Output {
	period := c.cfg.GatePeriod()
	c.t += period

	var dt float64
	if ok {
		raw := float64(errCycles)
		if !c.filtInit {
			c.filt, c.filtInit = raw, true
		} else {
			c.filt += c.alpha * (raw - c.filt)
		}
		errSec := c.filt / c.cfg.CounterFreq
		c.relErr = errSec / period
		c.phase = 2 * math.Pi * c.relErr

		dt = c.t - c.lastValidT
		c.lastValidT = c.t
		c.driftEst = c.drift.Update(errSec*1e9, time.Duration(dt*float64(time.Second)))
	}

	stepTest := false
	switch {
	case c.stepLeft > 0:
		c.stepLeft--
		stepTest = true
		c.mode = ModeNormal
		c.pid.Force(true)
	case c.relErr > c.cfg.FastThreshold:
		c.mode = ModeFaster
		c.pid.Force(true)
	case c.relErr < -c.cfg.FastThreshold:
		c.mode = ModeSlower
		c.pid.Force(false)
	default:
		c.mode = ModeNormal
		if ok {
			if _, err := c.pid.Update(dt, c.phase); err != nil {
				logger.Error("dpll: t=%.6f dt=%g: %v", c.t, dt, err)
			}
		}
	}
	if c.mode != ModeNormal || stepTest {
		// без скачка производной при возврате в нормальный режим
		c.pid.LastError = c.phase
	}

	c.updateLock(ok, stepTest)

	out := c.pid.Output()
	code, tune := c.q.Quantize(out)
	p, i, d := c.pid.Terms()
	return Output{
		Time:      c.t,
		Valid:     ok,
		ErrCycles: errCycles,
		RelError:  c.relErr,
		Phase:     c.phase,
		P:         p,
		I:         i,
		D:         d,
		Tune:      tune,
		Code:      code,
		Mode:      c.mode,
		StepTest:  stepTest,
		Locked:    c.lockCount >= lockCycles,
		Drift:     c.driftEst,
	}
}

func (c *Controller) updateLock(ok, stepTest bool) {
	if !ok {
		return
	}
	if stepTest || c.mode != ModeNormal || math.Abs(c.relErr) >= lockFraction*c.cfg.FastThreshold {
		c.lockCount = 0
		return
	}
	if c.lockCount < lockCycles {
		c.lockCount++
	}
}

// Apply пишет режим делителя и код подстройки. Вызывается каждый такт,
// независимо от того, изменились ли значения.
func Apply(w *regs.Writer, o Output) error {
	if err := w.WriteReg32(regs.TDCCon, o.Mode.TDCCon()); err != nil {
		return err
	}
	return w.WriteReg32(regs.FTUNVtuneSet, o.Code)
}
