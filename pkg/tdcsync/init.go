package tdcsync

import (
	"github.com/shiwa/timecard-mini/tdc-sync/internal/config"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/dpll"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/regs"
)

// InitDevice приводит плату в исходное состояние до запуска цикла чтения:
// синхронизация парсера кадров, сброс, вспомогательные делители, середина
// диапазона подстройки, включение TDC в нормальном режиме.
func InitDevice(w *regs.Writer, rc config.RegistersConfig, midCode uint32) error {
	if err := w.Resync(); err != nil {
		return err
	}
	steps := []struct {
		addr uint16
		val  uint32
		skip bool
	}{
		{regs.SysCon, regs.SysConSysRst, false},
		{regs.SysCon, 0, false},
		{regs.TDCCon, 0, false},
		{regs.TDCPLL, rc.TDCPLL, rc.TDCPLL == 0},
		{regs.TDCDivGate, rc.DivGate, rc.DivGate == 0},
		{regs.TDCDivMeas, rc.DivMeas, rc.DivMeas == 0},
		{regs.PPSRateDiv, rc.PPSRateDiv, rc.PPSRateDiv == 0},
		{regs.PPSPulseWidth, rc.PPSPulseWidth, rc.PPSPulseWidth == 0},
		{regs.IOClkout, rc.Clkout, rc.Clkout == 0},
		{regs.FTUNVtuneSet, midCode, false},
		{regs.TDCCon, dpll.ModeNormal.TDCCon(), false},
		{regs.PPSCon, regs.PPSConEn, rc.PPSRateDiv == 0},
	}
	for _, s := range steps {
		if s.skip {
			continue
		}
		if err := w.WriteReg32(s.addr, s.val); err != nil {
			return err
		}
	}
	return nil
}
