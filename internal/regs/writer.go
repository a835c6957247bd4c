package regs

import (
	"fmt"
	"io"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/slip"
)

// Writer отправляет команды регистров в транспорт, каждую отдельным кадром.
// Не потокобезопасен: запись идёт либо из кода инициализации, либо из цикла чтения.
type Writer struct {
	w io.Writer
}

// NewWriter оборачивает сторону записи транспорта.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send кодирует payload в кадр и пишет его целиком.
func (wr *Writer) Send(payload []byte) error {
	_, err := wr.w.Write(slip.Encode(payload))
	return err
}

// WriteReg выбирает регистр addr и пишет в него data.
func (wr *Writer) WriteReg(addr uint16, data []byte) error {
	if err := wr.Send(SetAddress(addr)); err != nil {
		return fmt.Errorf("select 0x%03x: %w", addr, err)
	}
	if err := wr.Send(WriteData(data...)); err != nil {
		return fmt.Errorf("write 0x%03x: %w", addr, err)
	}
	return nil
}

// WriteReg32 пишет 32-битное значение регистра.
func (wr *Writer) WriteReg32(addr uint16, v uint32) error {
	return wr.WriteReg(addr, Uint32(v))
}

// Resync сбрасывает парсер кадров на стороне устройства: одиночный END
// закрывает возможный мусор, пустой кадр — keepalive.
func (wr *Writer) Resync() error {
	if _, err := wr.w.Write([]byte{slip.END}); err != nil {
		return err
	}
	return wr.Send(nil)
}
