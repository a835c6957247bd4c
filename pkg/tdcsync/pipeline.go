package tdcsync

import (
	"fmt"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/dpll"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/metrics"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/regs"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/tdc"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/trace"
)

// Pipeline — обработчик пакетов: телеметрия TDC → детектор фазы → петля → регистры.
// Вызывается синхронно из цикла чтения.
type Pipeline struct {
	det   *tdc.PhaseDetector
	ctl   *dpll.Controller
	w     *regs.Writer
	trace *trace.Writer

	statusEvery int
	cycles      int
	err         error

	// OnOutput вызывается после каждого такта петли.
	OnOutput func(o dpll.Output)
	// OnFatal вызывается при ошибке записи в транспорт; дальнейшие пакеты игнорируются.
	OnFatal func(err error)
}

// NewPipeline собирает обработчик. tr может быть nil (трасса выключена).
func NewPipeline(det *tdc.PhaseDetector, ctl *dpll.Controller, w *regs.Writer, tr *trace.Writer) *Pipeline {
	every := int(ctl.Config().GateFreq)
	if every < 1 {
		every = 1
	}
	return &Pipeline{
		det:         det,
		ctl:         ctl,
		w:           w,
		trace:       tr,
		statusEvery: every,
		OnFatal: func(err error) {
			logger.Fatal("%v", err)
		},
	}
}

// Err — ошибка, после которой обработка остановлена.
func (p *Pipeline) Err() error {
	return p.err
}

// HandleRx реализует reader.Handler.
func (p *Pipeline) HandleRx(streamID uint8, payload []byte) {
	metrics.Packet(streamID)
	if p.err != nil {
		return
	}
	if streamID != tdc.StreamID {
		logger.Debug("пакет потока %d (%d байт) пропущен", streamID, len(payload))
		return
	}
	m, err := tdc.ParseMeasurement(payload)
	if err != nil {
		metrics.BadPayload()
		logger.Warn("%v", err)
		return
	}
	if err := m.Validate(); err != nil {
		metrics.BadPayload()
		logger.Warn("%v", err)
		m.T12Valid = false
	}

	errCycles, ok := p.det.Process(m)
	o := p.ctl.Step(errCycles, ok)
	if err := dpll.Apply(p.w, o); err != nil {
		p.err = fmt.Errorf("register write: %w", err)
		if p.OnFatal != nil {
			p.OnFatal(p.err)
		}
		return
	}
	p.record(o)
}

func (p *Pipeline) record(o dpll.Output) {
	if p.trace != nil {
		err := p.trace.Write(trace.Record{
			Time:      o.Time,
			Valid:     o.Valid,
			ErrCycles: o.ErrCycles,
			RelError:  o.RelError,
			P:         o.P,
			I:         o.I,
			Tune:      o.Tune,
			Code:      o.Code,
		})
		if err != nil {
			logger.Error("трасса отключена: %v", err)
			_ = p.trace.Close()
			p.trace = nil
		}
	}
	metrics.Observe(metrics.Loop{
		Valid:    o.Valid,
		RelError: o.RelError,
		Code:     o.Code,
		Mode:     int(o.Mode),
		Locked:   o.Locked,
		Drift:    o.Drift,
	})
	if p.OnOutput != nil {
		p.OnOutput(o)
	}

	p.cycles++
	if p.cycles%p.statusEvery == 0 {
		logger.Info("t=%.0fs mode=%v code=%d err=%.3g locked=%v drift=%.3gppm step_test=%v",
			o.Time, o.Mode, o.Code, o.RelError, o.Locked, o.Drift*1e6, o.StepTest)
	}
}

// CloseTrace сбрасывает и закрывает трассу; вызывать после остановки цикла.
func (p *Pipeline) CloseTrace() error {
	if p.trace == nil {
		return nil
	}
	err := p.trace.Close()
	p.trace = nil
	return err
}
