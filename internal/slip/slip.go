// Package slip — SLIP-подобное кадрирование байтового потока обмена с платой LWDO.
//
// Кадр: payload с экранированными END/ESC и завершающим END. Декодер собирает
// кадры из входных кусков произвольной длины; незавершённый хвост хранится
// до следующего вызова.
package slip

import "bytes"

// Зарезервированные байты кадрирования
const (
	END    = 0xC0
	ESC    = 0xDB
	ESCEnd = 0xDC
	ESCEsc = 0xDD
)

var (
	escSeqEsc = []byte{ESC, ESCEsc}
	escSeqEnd = []byte{ESC, ESCEnd}
	endByte   = []byte{END}
	escByte   = []byte{ESC}
)

// Encode экранирует payload и добавляет END.
// Сначала заменяются ESC, затем END — иначе экранирующие последовательности экранировались бы повторно.
func Encode(payload []byte) []byte {
	out := bytes.ReplaceAll(payload, escByte, escSeqEsc)
	out = bytes.ReplaceAll(out, endByte, escSeqEnd)
	return append(out, END)
}

// Unescape восстанавливает исходные байты кадра. Функция тотальна:
// одиночный ESC без пары остаётся как есть.
func Unescape(frame []byte) []byte {
	out := bytes.ReplaceAll(frame, escSeqEnd, endByte)
	return bytes.ReplaceAll(out, escSeqEsc, escByte)
}

// Feed дописывает p к buf, отделяет завершённые кадры и возвращает новый хвост.
// Пустой завершённый кадр допустим (keepalive).
func Feed(buf, p []byte) ([]byte, [][]byte) {
	buf = append(buf, p...)
	parts := bytes.Split(buf, endByte)
	last := len(parts) - 1
	var frames [][]byte
	for _, raw := range parts[:last] {
		frames = append(frames, Unescape(raw))
	}
	// хвост копируется, чтобы не держать весь старый буфер
	tail := append([]byte(nil), parts[last]...)
	return tail, frames
}

// Decoder — инкрементальный декодер с собственным буфером.
type Decoder struct {
	buf []byte
}

// Feed обрабатывает очередной кусок потока.
func (d *Decoder) Feed(p []byte) [][]byte {
	var frames [][]byte
	d.buf, frames = Feed(d.buf, p)
	return frames
}

// Pending — число байт незавершённого кадра.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset отбрасывает незавершённый кадр.
func (d *Decoder) Reset() {
	d.buf = nil
}
