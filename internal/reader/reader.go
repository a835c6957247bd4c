// Package reader — цикл чтения транспорта: куски → кадры → пакеты → обработчик.
//
// Вся последующая работа (детектор фазы, регулятор, запись регистров) выполняется
// синхронно в горутине цикла. Остановка кооперативная: флаг проверяется между
// чтениями, поэтому выход наступает не позже одного таймаута чтения.
package reader

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/slip"
)

// Handler получает payload пакета потока streamID.
type Handler interface {
	HandleRx(streamID uint8, payload []byte)
}

// HandlerFunc — функция как Handler.
type HandlerFunc func(streamID uint8, payload []byte)

// HandleRx вызывает f.
func (f HandlerFunc) HandleRx(streamID uint8, payload []byte) {
	f(streamID, payload)
}

// ErrClosed — транспорт вернул EOF (устройство закрыло канал).
var ErrClosed = errors.New("reader: transport closed")

// Loop — цикл чтения.
type Loop struct {
	r       io.Reader
	h       Handler
	chunk   int
	decoder slip.Decoder

	stop    atomic.Bool
	started atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	err error

	// OnFatal вызывается при ошибке транспорта. По умолчанию — logger.Fatal (выход из процесса).
	OnFatal func(err error)
	// OnFrame вызывается для каждого кадра, включая пустые; для метрик.
	OnFrame func(n int)
}

// New создаёт цикл. chunk — размер буфера чтения (обычно Transport.ChunkSize()).
func New(r io.Reader, h Handler, chunk int) *Loop {
	if chunk <= 0 {
		chunk = 4096
	}
	return &Loop{
		r:     r,
		h:     h,
		chunk: chunk,
		done:  make(chan struct{}),
		OnFatal: func(err error) {
			logger.Fatal("%v", err)
		},
	}
}

// Start запускает цикл в отдельной горутине. Повторный вызов игнорируется.
func (l *Loop) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run()
}

// RequestStop просит цикл завершиться на следующей итерации.
func (l *Loop) RequestStop() {
	l.stop.Store(true)
}

// Join ждёт выхода из цикла.
func (l *Loop) Join() {
	<-l.done
}

// Done закрывается при выходе из цикла.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err — ошибка, на которой остановился цикл (nil при штатной остановке).
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run() {
	defer close(l.done)
	buf := make([]byte, l.chunk)
	for !l.stop.Load() {
		n, err := l.r.Read(buf)
		if n > 0 {
			l.dispatch(l.decoder.Feed(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			l.fail(fmt.Errorf("transport read: %w", err))
			return
		}
	}
	logger.Debug("reader: остановлен, в буфере %d байт", l.decoder.Pending())
}

func (l *Loop) dispatch(frames [][]byte) {
	for _, f := range frames {
		if l.OnFrame != nil {
			l.OnFrame(len(f))
		}
		if len(f) == 0 {
			logger.Debug("reader: пустой кадр")
			continue
		}
		l.h.HandleRx(f[0], f[1:])
	}
}

func (l *Loop) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	logger.Error("%v", err)
	if l.OnFatal != nil {
		l.OnFatal(err)
	}
}
