// Package tdcsync собирает демон подстройки VCXO по телеметрии TDC:
// транспорт, цикл чтения, детектор фазы, петля DPLL и запись регистров.
package tdcsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/config"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/dpll"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/metrics"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/reader"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/regs"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/rtprio"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/tdc"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/trace"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/transport"
)

// RunDaemon открывает устройство по cfg.Device и работает до отмены ctx
// или фатальной ошибки транспорта.
func RunDaemon(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("tdcsync: nil config")
	}
	runID := uuid.NewString()
	logger.Setup(cfg.Log.Level, runID)
	if err := cfg.Validate(); err != nil {
		return err
	}
	timeout, err := cfg.Device.ReadTimeoutDuration()
	if err != nil {
		return err
	}
	tr, err := transport.Open(transport.Options{
		URL:         cfg.Device.URL,
		Driver:      cfg.Device.Driver,
		Baud:        cfg.Device.Baud,
		ReadTimeout: timeout,
		ChunkSize:   cfg.Device.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Device.URL, err)
	}
	defer tr.Close()

	if cfg.Realtime.Enable {
		if err := rtprio.Raise(cfg.Realtime.Nice); err != nil {
			logger.Warn("realtime: %v", err)
		} else {
			defer func() { _ = rtprio.Release() }()
		}
	}
	return Run(ctx, cfg, tr, runID)
}

// Run ведёт петлю на уже открытом транспорте. Транспорт не закрывается.
func Run(ctx context.Context, cfg *config.Config, tr transport.Transport, runID string) error {
	dcfg, err := dpll.FromConfig(cfg)
	if err != nil {
		return err
	}
	ctl, err := dpll.NewController(dcfg)
	if err != nil {
		return err
	}
	skip := tdc.DefaultStartupSkip
	if cfg.TDC.StartupSkip != nil {
		skip = *cfg.TDC.StartupSkip
	}

	w := regs.NewWriter(tr)
	if err := InitDevice(w, cfg.Registers, ctl.MidCode()); err != nil {
		return fmt.Errorf("device init: %w", err)
	}
	kp, ki := dcfg.Gains()
	logger.Info("петля: gate=%.0fHz counter=%.0fHz kp=%.4g ki=%.4g limit=%.3gppm bits=%d mid=%#x",
		dcfg.GateFreq, dcfg.CounterFreq, kp, ki, dcfg.Limit*1e6, dcfg.TuningBits, ctl.MidCode())
	if dcfg.StepTestCycles > 0 {
		logger.Info("ступенчатый тест: %d тактов", dcfg.StepTestCycles)
	}

	var tw *trace.Writer
	if cfg.Trace.Path != "" {
		if tw, err = trace.Create(cfg.Trace.Path, runID); err != nil {
			return err
		}
	}

	metrics.Register()
	pipe := NewPipeline(tdc.NewPhaseDetector(skip), ctl, w, tw)
	loop := reader.New(tr, pipe, tr.ChunkSize())
	loop.OnFrame = metrics.Frame
	loop.OnFatal = func(error) {}
	pipe.OnFatal = func(error) { loop.RequestStop() }

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Listen)
		})
	}
	loop.Start()
	g.Go(func() error {
		select {
		case <-gctx.Done():
			loop.RequestStop()
		case <-loop.Done():
		}
		loop.Join()
		if err := pipe.Err(); err != nil {
			return err
		}
		if err := loop.Err(); err != nil {
			return err
		}
		// цикл остановлен без ошибки; гасим остальные горутины
		return gctx.Err()
	})
	err = g.Wait()
	if cerr := pipe.CloseTrace(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}
