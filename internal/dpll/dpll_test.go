package dpll

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/config"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/regs"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/servo"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/slip"
)

// testConfig: 100 тактов счётчика на интервал, порог захвата 10 тактов,
// ФНЧ практически прозрачный.
func testConfig() Config {
	return Config{
		GateFreq:      100,
		CounterFreq:   10000,
		TauDPLL:       1,
		Damping:       0.7,
		TauLPF:        0.0005,
		Limit:         50e-6,
		TuningBits:    16,
		FastThreshold: 0.1,
		Hysteresis:    0.75,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		also   error
	}{
		{"gate", func(c *Config) { c.GateFreq = 0 }, nil},
		{"counter", func(c *Config) { c.CounterFreq = -1 }, nil},
		{"tau", func(c *Config) { c.TauDPLL = 0 }, nil},
		{"damping", func(c *Config) { c.Damping = -0.5 }, nil},
		{"kd", func(c *Config) { c.Kd = -1 }, servo.ErrNegativeGain},
		{"lpf", func(c *Config) { c.TauLPF = 0 }, nil},
		{"limit", func(c *Config) { c.Limit = 0 }, servo.ErrBadLimit},
		{"bits", func(c *Config) { c.TuningBits = 33 }, nil},
		{"threshold", func(c *Config) { c.FastThreshold = 0 }, nil},
		{"hysteresis", func(c *Config) { c.Hysteresis = -1 }, nil},
		{"step", func(c *Config) { c.StepTestCycles = -1 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(&c)
			_, err := NewController(c)
			if !errors.Is(err, ErrBadConfig) {
				t.Fatalf("got %v want ErrBadConfig", err)
			}
			if tt.also != nil && !errors.Is(err, tt.also) {
				t.Errorf("got %v, want also %v", err, tt.also)
			}
		})
	}
	if err := testConfig().Validate(); err != nil {
		t.Errorf("testConfig invalid: %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DPLL.StepTest = true
	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if c.GateFreq != 100 || c.CounterFreq != 100e6 {
		t.Errorf("freqs = %v, %v", c.GateFreq, c.CounterFreq)
	}
	if math.Abs(c.Limit-50e-6) > 1e-18 {
		t.Errorf("limit = %v want 50e-6", c.Limit)
	}
	if c.StepTestCycles != cfg.DPLL.StepTestCycles {
		t.Errorf("step test cycles = %d", c.StepTestCycles)
	}
	cfg.DPLL.StepTest = false
	c, _ = FromConfig(cfg)
	if c.StepTestCycles != 0 {
		t.Errorf("step test enabled without flag")
	}
}

func TestGainsAndAlpha(t *testing.T) {
	c := testConfig()
	kp, ki := c.Gains()
	wkp, wki := servo.LoopGains(1, 0.7, 100, 0)
	if kp != wkp || ki != wki {
		t.Errorf("Gains = (%v, %v) want (%v, %v)", kp, ki, wkp, wki)
	}
	c.TauLPF = 0.01
	want := 1 - math.Exp(-1)
	if math.Abs(c.LPFAlpha()-want) > 1e-15 {
		t.Errorf("alpha = %v want %v", c.LPFAlpha(), want)
	}
}

// outFor — выход регулятора, для которого значение до округления равно raw.
func outFor(q *Quantizer, raw float64) float64 {
	return (raw/math.Exp2(float64(q.Bits)) - 0.5) * 2 * q.Limit
}

func TestQuantizer(t *testing.T) {
	q := &Quantizer{Bits: 8, Limit: 1, Hysteresis: 0.75}
	if code, tune := q.Quantize(0); code != 128 || tune != 0.5 {
		t.Fatalf("Quantize(0) = %d, %v", code, tune)
	}
	steps := []struct {
		raw  float64
		want uint32
	}{
		{128.7, 128}, // в мёртвой зоне
		{129.0, 129}, // |129-128| > 0.75
		{128.3, 129}, // |128.3-129| = 0.7
		{127.9, 128}, // 1.1 → округление
		{200.2, 200},
		{199.5, 200},
	}
	for _, s := range steps {
		code, _ := q.Quantize(outFor(q, s.raw))
		if code != s.want {
			t.Errorf("raw %.2f: code %d want %d", s.raw, code, s.want)
		}
	}
}

func TestQuantizerClamp(t *testing.T) {
	q := &Quantizer{Bits: 8, Limit: 1, Hysteresis: 0.75}
	if code, _ := q.Quantize(1); code != 255 {
		t.Errorf("Quantize(+limit) = %d want 255", code)
	}
	if code, _ := q.Quantize(-1); code != 0 {
		t.Errorf("Quantize(-limit) = %d want 0", code)
	}
	if code, _ := q.Quantize(5); code != 255 {
		t.Errorf("Quantize(5) = %d want 255", code)
	}
	q32 := &Quantizer{Bits: 32, Limit: 1}
	if code, _ := q32.Quantize(1); code != math.MaxUint32 {
		t.Errorf("32-bit max = %d", code)
	}
	if q32.Mid() != 1<<31 {
		t.Errorf("32-bit mid = %d", q32.Mid())
	}
}

func TestModeTDCCon(t *testing.T) {
	tests := []struct {
		m    Mode
		want uint32
	}{
		{ModeNormal, 0x3},
		{ModeFaster, 0xB},
		{ModeSlower, 0x7},
	}
	for _, tt := range tests {
		if got := tt.m.TDCCon(); got != tt.want {
			t.Errorf("%v.TDCCon() = %#x want %#x", tt.m, got, tt.want)
		}
	}
}

func TestControllerHoldsWithoutObservation(t *testing.T) {
	c, err := NewController(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		c.Step(3, true)
	}
	before := c.Step(4, true)
	for i := 0; i < 3; i++ {
		o := c.Step(0, false)
		if o.Valid || o.P != before.P || o.I != before.I || o.D != before.D || o.Code != before.Code {
			t.Fatalf("state changed without observation: %+v vs %+v", o, before)
		}
		if o.Time <= before.Time {
			t.Fatalf("virtual time did not advance")
		}
	}
}

func TestControllerFastCapture(t *testing.T) {
	c, err := NewController(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	seq := []struct {
		err  int64
		ok   bool
		want Mode
	}{
		{0, true, ModeNormal},
		{1, true, ModeNormal},
		{30, true, ModeFaster},
		{30, true, ModeFaster},
		{0, false, ModeFaster}, // нет наблюдения — режим по последней ошибке
		{35, true, ModeFaster},
		{2, true, ModeNormal},
		{-40, true, ModeSlower},
		{-40, true, ModeSlower},
		{-1, true, ModeNormal},
	}
	for i, s := range seq {
		o := c.Step(s.err, s.ok)
		if o.Mode != s.want {
			t.Fatalf("step %d: mode %v want %v (rel %v)", i, o.Mode, s.want, o.RelError)
		}
		switch o.Mode {
		case ModeFaster:
			if o.I != c.Config().Limit || o.P != 0 || o.D != 0 {
				t.Errorf("step %d: faster mode terms %v %v %v", i, o.P, o.I, o.D)
			}
		case ModeSlower:
			if o.I != -c.Config().Limit {
				t.Errorf("step %d: slower mode integral %v", i, o.I)
			}
		}
		if math.Abs(o.I) > c.Config().Limit {
			t.Errorf("step %d: integral %v out of range", i, o.I)
		}
	}
}

func TestControllerStepTest(t *testing.T) {
	cfg := testConfig()
	cfg.StepTestCycles = 3
	c, err := NewController(cfg)
	if err != nil {
		t.Fatal(err)
	}
	max := uint32(1<<16 - 1)
	for i := 0; i < 3; i++ {
		// даже большая отрицательная ошибка не меняет решения
		o := c.Step(-50, i != 1)
		if !o.StepTest || o.Mode != ModeNormal {
			t.Fatalf("cycle %d: step test inactive: %+v", i, o)
		}
		if o.Code != max || o.Tune != 1 {
			t.Errorf("cycle %d: code %d tune %v, want %d 1", i, o.Code, o.Tune, max)
		}
	}
	o := c.Step(-50, true)
	if o.StepTest || o.Mode != ModeSlower {
		t.Errorf("after step test: %+v", o)
	}
}

func TestControllerStepTestRearm(t *testing.T) {
	c, err := NewController(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if o := c.Step(-50, true); o.StepTest || o.Mode != ModeSlower {
		t.Fatalf("step test must be off by default: %+v", o)
	}
	c.StartStepTest(2)
	for i := 0; i < 2; i++ {
		o := c.Step(-50, true)
		if !o.StepTest || o.Mode != ModeNormal || o.I != c.Config().Limit {
			t.Fatalf("cycle %d after rearm: %+v", i, o)
		}
	}
	if o := c.Step(-50, true); o.StepTest || o.Mode != ModeSlower {
		t.Errorf("step test must end after 2 cycles: %+v", o)
	}

	c.StartStepTest(5)
	c.StartStepTest(0)
	if o := c.Step(-50, true); o.StepTest {
		t.Errorf("StartStepTest(0) must cancel: %+v", o)
	}
}

func TestControllerDriftWaitsForFullWindow(t *testing.T) {
	c, _ := NewController(testConfig())
	var o Output
	for i := 0; i < servo.LinRegWindow-1; i++ {
		// фаза медленно растёт, ошибка остаётся ниже порога захвата
		o = c.Step(int64(i/8), true)
		if o.Drift != 0 {
			t.Fatalf("sample %d: drift %v before window is full", i, o.Drift)
		}
	}
	o = c.Step(int64((servo.LinRegWindow-1)/8), true)
	if !(o.Drift > 0) {
		t.Fatalf("drift %v after full window, want positive", o.Drift)
	}
	// без наблюдения оценка удерживается
	if h := c.Step(0, false); h.Drift != o.Drift {
		t.Errorf("drift %v not held without observation, want %v", h.Drift, o.Drift)
	}
}

func TestControllerNoPIDErrorsAcrossGaps(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	c, _ := NewController(testConfig())
	for i := 0; i < 500; i++ {
		c.Step(int64(i%5)-2, i%3 != 0)
	}
	if strings.Contains(buf.String(), "dpll:") {
		t.Errorf("PID update rejected a cycle:\n%s", buf.String())
	}
}

func TestControllerLock(t *testing.T) {
	c, _ := NewController(testConfig())
	var o Output
	for i := 0; i < lockCycles-1; i++ {
		o = c.Step(0, true)
	}
	if o.Locked {
		t.Fatal("locked too early")
	}
	o = c.Step(0, true)
	if !o.Locked {
		t.Fatal("not locked after lockCycles")
	}
	o = c.Step(50, true)
	if o.Locked {
		t.Error("still locked after large error")
	}
}

func TestControllerNormalTracksError(t *testing.T) {
	c, _ := NewController(testConfig())
	mid := c.MidCode()
	o := c.Step(5, true)
	if o.Mode != ModeNormal || o.P <= 0 || o.Code <= mid {
		t.Errorf("positive error: %+v (mid %d)", o, mid)
	}
	c2, _ := NewController(testConfig())
	o = c2.Step(-5, true)
	if o.P >= 0 || o.Code >= mid {
		t.Errorf("negative error: %+v (mid %d)", o, mid)
	}
}

func TestApply(t *testing.T) {
	var buf bytes.Buffer
	w := regs.NewWriter(&buf)
	if err := Apply(w, Output{Mode: ModeSlower, Code: 0x123456}); err != nil {
		t.Fatal(err)
	}
	var d slip.Decoder
	frames := d.Feed(buf.Bytes())
	if len(frames) != 4 {
		t.Fatalf("got %d frames want 4", len(frames))
	}
	if !bytes.Equal(frames[0], regs.SetAddress(regs.TDCCon)) {
		t.Errorf("frame 0 = % x", frames[0])
	}
	if v := binary.LittleEndian.Uint32(frames[1][1:]); v != 0x7 {
		t.Errorf("TDC_CON = %#x want 0x7", v)
	}
	if !bytes.Equal(frames[2], regs.SetAddress(regs.FTUNVtuneSet)) {
		t.Errorf("frame 2 = % x", frames[2])
	}
	if v := binary.LittleEndian.Uint32(frames[3][1:]); v != 0x123456 {
		t.Errorf("VTUNE = %#x", v)
	}
}
