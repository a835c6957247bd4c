// Package tdc — телеметрия время-цифрового преобразователя и фазовый детектор.
package tdc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// StreamID — идентификатор потока телеметрии TDC во входящих пакетах.
const StreamID = 4

// PayloadSize — t0, t1, t2 по 4 байта little-endian.
const PayloadSize = 12

// noEdge — значение t1/t2, когда импульс опорного сигнала в интервале не зафиксирован.
const noEdge = 0xFFFFFFFF

var (
	ErrShortPayload = errors.New("tdc: short payload")
	ErrInconsistent = errors.New("tdc: edge counter beyond interval end")
)

// Measurement — один интервал гейта.
// T0 — последнее значение счётчика в интервале; T1/T2 — значения счётчика
// на первом и последнем импульсе опорного сигнала (только при T12Valid).
type Measurement struct {
	T0, T1, T2 uint32
	T12Valid   bool
}

// ParseMeasurement разбирает payload потока StreamID.
// Лишние байты после первых 12 игнорируются.
func ParseMeasurement(payload []byte) (Measurement, error) {
	if len(payload) < PayloadSize {
		return Measurement{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	m := Measurement{
		T0: binary.LittleEndian.Uint32(payload[0:4]),
		T1: binary.LittleEndian.Uint32(payload[4:8]),
		T2: binary.LittleEndian.Uint32(payload[8:12]),
	}
	m.T12Valid = m.T1 != noEdge || m.T2 != noEdge
	return m, nil
}

// Validate проверяет 0 <= t1,t2 <= t0 для валидных фронтов.
func (m Measurement) Validate() error {
	if !m.T12Valid {
		return nil
	}
	if m.T1 > m.T0 || m.T2 > m.T0 {
		return fmt.Errorf("%w: t0=%d t1=%d t2=%d", ErrInconsistent, m.T0, m.T1, m.T2)
	}
	return nil
}

// Marshal — обратная операция к ParseMeasurement.
func (m Measurement) Marshal() []byte {
	b := make([]byte, PayloadSize)
	t1, t2 := m.T1, m.T2
	if !m.T12Valid {
		t1, t2 = noEdge, noEdge
	}
	binary.LittleEndian.PutUint32(b[0:4], m.T0)
	binary.LittleEndian.PutUint32(b[4:8], t1)
	binary.LittleEndian.PutUint32(b[8:12], t2)
	return b
}
