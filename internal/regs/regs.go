// Package regs — карта регистров платы LWDO и кодирование команд записи.
//
// Команды уходят на устройство внутри SLIP-кадров:
//
//	0x21 addr_lo addr_hi   — выбрать регистр
//	0x22 d0 d1 ... dN      — записать N байт с автоинкрементом адреса
package regs

import "encoding/binary"

// Коды команд
const (
	OpSetAddress = 0x21
	OpWriteData  = 0x22
)

// Смещения регистров (байтовые), блоки по 0x20
const (
	SysMagic   = 0x000
	SysVersion = 0x004
	SysCon     = 0x008
	SysPLL     = 0x00c

	HWTimeCnt = 0x020

	TDCCon     = 0x040
	TDCPLL     = 0x044
	TDCDivGate = 0x048
	TDCDivMeas = 0x04c

	ADCCon           = 0x060
	ADCSampleRateDiv = 0x064
	ADCTSRateDiv     = 0x068

	FTUNVtuneSet = 0x080

	PPSCon        = 0x0a0
	PPSRateDiv    = 0x0a4
	PPSPulseWidth = 0x0a8

	IOClkout = 0x0c0

	TestRW = 0x3e0
)

// Биты SYS_CON
const (
	SysConSysRst = 1 << 0
)

// Биты TDC_CON. Младший полубайт задаёт режим делителя гейта.
const (
	TDCConEn        = 1 << 0
	TDCConMeasDivEn = 1 << 1
	TDCConGateFDec  = 1 << 2
	TDCConGateFInc  = 1 << 3
)

// Биты PPS_CON
const (
	PPSConEn = 1 << 0
)

// Поля IO_CLKOUT
const (
	IOClkoutSourceMask = 0x1f
	IOClkoutInv        = 1 << 30
	IOClkoutMode       = 1 << 31
)

// Ширина кода подстройки в FTUN_VTUNE_SET: DAC_LOW (8) + DAC_HIGH (16)
const VtuneBits = 24

// SetAddress кодирует команду выбора регистра (адрес little-endian).
func SetAddress(addr uint16) []byte {
	b := make([]byte, 3)
	b[0] = OpSetAddress
	binary.LittleEndian.PutUint16(b[1:], addr)
	return b
}

// WriteData кодирует команду записи байт по выбранному адресу.
func WriteData(data ...byte) []byte {
	b := make([]byte, 0, 1+len(data))
	b = append(b, OpWriteData)
	return append(b, data...)
}

// Uint32 — 4 байта значения регистра в порядке little-endian.
func Uint32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}
