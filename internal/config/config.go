package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Config — конфигурация tdc-sync.
// Формат YAML (tdc-sync.yml) или TOML (tdc-sync.toml), выбирается по расширению.
type Config struct {
	Device    DeviceConfig    `yaml:"device" toml:"device"`
	TDC       TDCConfig       `yaml:"tdc" toml:"tdc"`
	DPLL      DPLLConfig      `yaml:"dpll" toml:"dpll"`
	Registers RegistersConfig `yaml:"registers" toml:"registers"`
	Trace     TraceConfig     `yaml:"trace" toml:"trace"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
}

// DeviceConfig — транспорт до платы.
// URL: путь к порту (/dev/ttyUSB0) или tcp://host:port для сетевого моста.
type DeviceConfig struct {
	URL         string `yaml:"url" toml:"url"`
	Driver      string `yaml:"driver" toml:"driver"` // tarm, bugst, tcp; пусто — по URL
	Baud        int    `yaml:"baud" toml:"baud"`
	ReadTimeout string `yaml:"read_timeout" toml:"read_timeout"`
	ChunkSize   int    `yaml:"chunk_size" toml:"chunk_size"`
}

// TDCConfig — частоты счётчика и гейта в нотации СИ ("100MHz", "100Hz").
type TDCConfig struct {
	CounterFreq string `yaml:"counter_freq" toml:"counter_freq"`
	GateFreq    string `yaml:"gate_freq" toml:"gate_freq"`
	StartupSkip *int   `yaml:"startup_skip" toml:"startup_skip"`
}

// DPLLConfig — параметры петли. Времена в секундах.
type DPLLConfig struct {
	TauDPLL        float64 `yaml:"tau_dpll" toml:"tau_dpll"`
	Damping        float64 `yaml:"damping" toml:"damping"`
	Kd             float64 `yaml:"kd" toml:"kd"`
	TauLPF         float64 `yaml:"tau_lpf" toml:"tau_lpf"`
	VCXOSpanPPM    float64 `yaml:"vcxo_span_ppm" toml:"vcxo_span_ppm"`
	TuningBits     int     `yaml:"tuning_bits" toml:"tuning_bits"`
	FastThreshold  float64 `yaml:"fast_threshold" toml:"fast_threshold"` // доля периода гейта
	Hysteresis     float64 `yaml:"hysteresis" toml:"hysteresis"`         // в единицах кода
	StepTest       bool    `yaml:"step_test" toml:"step_test"`
	StepTestCycles int     `yaml:"step_test_cycles" toml:"step_test_cycles"`
}

// RegistersConfig — значения вспомогательных регистров при инициализации; 0 — не писать.
type RegistersConfig struct {
	TDCPLL        uint32 `yaml:"tdc_pll" toml:"tdc_pll"`
	DivGate       uint32 `yaml:"div_gate" toml:"div_gate"`
	DivMeas       uint32 `yaml:"div_meas" toml:"div_meas"`
	PPSRateDiv    uint32 `yaml:"pps_rate_div" toml:"pps_rate_div"`
	PPSPulseWidth uint32 `yaml:"pps_pulse_width" toml:"pps_pulse_width"`
	Clkout        uint32 `yaml:"clkout" toml:"clkout"`
}

// TraceConfig — CSV трасса петли (пусто — выключена).
type TraceConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// MetricsConfig — адрес HTTP для Prometheus (пусто — выключено).
type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// LogConfig — уровень логирования: trace, debug, info, warn, error.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// RealtimeConfig — приоритет процесса (nice) и mlockall; на не-Linux игнорируется.
type RealtimeConfig struct {
	Enable bool `yaml:"enable" toml:"enable"`
	Nice   int  `yaml:"nice" toml:"nice"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	skip := 2
	return &Config{
		Device: DeviceConfig{
			URL:         "/dev/ttyUSB0",
			Baud:        3000000,
			ReadTimeout: "100ms",
			ChunkSize:   4096,
		},
		TDC: TDCConfig{
			CounterFreq: "100MHz",
			GateFreq:    "100Hz",
			StartupSkip: &skip,
		},
		DPLL: DPLLConfig{
			TauDPLL:        10,
			Damping:        0.707,
			Kd:             0,
			TauLPF:         0.1,
			VCXOSpanPPM:    100,
			TuningBits:     24,
			FastThreshold:  0.05,
			Hysteresis:     0.75,
			StepTestCycles: 1000,
		},
		Log: LogConfig{Level: "info"},
		Realtime: RealtimeConfig{
			Nice: -10,
		},
	}
}

// Load читает конфиг из YAML или TOML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Device.URL == "" {
		c.Device.URL = d.Device.URL
	}
	if c.Device.Baud == 0 {
		c.Device.Baud = d.Device.Baud
	}
	if c.Device.ReadTimeout == "" {
		c.Device.ReadTimeout = d.Device.ReadTimeout
	}
	if c.Device.ChunkSize == 0 {
		c.Device.ChunkSize = d.Device.ChunkSize
	}
	if c.TDC.CounterFreq == "" {
		c.TDC.CounterFreq = d.TDC.CounterFreq
	}
	if c.TDC.GateFreq == "" {
		c.TDC.GateFreq = d.TDC.GateFreq
	}
	if c.TDC.StartupSkip == nil {
		c.TDC.StartupSkip = d.TDC.StartupSkip
	}
	if c.DPLL.TauDPLL == 0 {
		c.DPLL.TauDPLL = d.DPLL.TauDPLL
	}
	if c.DPLL.Damping == 0 {
		c.DPLL.Damping = d.DPLL.Damping
	}
	if c.DPLL.TauLPF == 0 {
		c.DPLL.TauLPF = d.DPLL.TauLPF
	}
	if c.DPLL.VCXOSpanPPM == 0 {
		c.DPLL.VCXOSpanPPM = d.DPLL.VCXOSpanPPM
	}
	if c.DPLL.TuningBits == 0 {
		c.DPLL.TuningBits = d.DPLL.TuningBits
	}
	if c.DPLL.FastThreshold == 0 {
		c.DPLL.FastThreshold = d.DPLL.FastThreshold
	}
	if c.DPLL.Hysteresis == 0 {
		c.DPLL.Hysteresis = d.DPLL.Hysteresis
	}
	if c.DPLL.StepTestCycles == 0 {
		c.DPLL.StepTestCycles = d.DPLL.StepTestCycles
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Realtime.Nice == 0 {
		c.Realtime.Nice = d.Realtime.Nice
	}
}

// CounterHz — частота счётчика TDC в Гц.
func (c *TDCConfig) CounterHz() (float64, error) {
	return parseHz(c.CounterFreq)
}

// GateHz — частота гейта (частота отсчётов петли) в Гц.
func (c *TDCConfig) GateHz() (float64, error) {
	return parseHz(c.GateFreq)
}

// ReadTimeoutDuration — таймаут блокирующего чтения; он же задержка останова цикла.
func (c *DeviceConfig) ReadTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 0, fmt.Errorf("device.read_timeout: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("device.read_timeout must be positive")
	}
	return d, nil
}

// Validate проверяет согласованность конфига до открытия устройства.
func (c *Config) Validate() error {
	if c.Device.URL == "" {
		return errors.New("device.url is empty")
	}
	if _, err := c.Device.ReadTimeoutDuration(); err != nil {
		return err
	}
	if c.Device.ChunkSize <= 0 {
		return errors.New("device.chunk_size must be positive")
	}
	counter, err := c.TDC.CounterHz()
	if err != nil {
		return fmt.Errorf("tdc.counter_freq: %w", err)
	}
	gate, err := c.TDC.GateHz()
	if err != nil {
		return fmt.Errorf("tdc.gate_freq: %w", err)
	}
	if gate >= counter {
		return fmt.Errorf("tdc.gate_freq %v must be below counter_freq %v", c.TDC.GateFreq, c.TDC.CounterFreq)
	}
	if c.TDC.StartupSkip != nil && *c.TDC.StartupSkip < 0 {
		return errors.New("tdc.startup_skip must be non-negative")
	}
	if c.DPLL.TuningBits <= 0 || c.DPLL.TuningBits > 32 {
		return fmt.Errorf("dpll.tuning_bits %d out of range 1..32", c.DPLL.TuningBits)
	}
	return nil
}

func parseHz(s string) (float64, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("frequency %q must be positive", s)
	}
	return float64(f) / float64(physic.Hertz), nil
}
