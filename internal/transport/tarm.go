package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// tarmPort — порт через github.com/tarm/serial.
type tarmPort struct {
	port  *serial.Port
	chunk int
}

func openTarm(o Options) (Transport, error) {
	c := &serial.Config{
		Name:        o.URL,
		Baud:        o.Baud,
		ReadTimeout: o.ReadTimeout,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", o.URL, err)
	}
	if err := p.Flush(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial flush %s: %w", o.URL, err)
	}
	return &tarmPort{port: p, chunk: o.ChunkSize}, nil
}

// Read: на posix tarm/serial сообщает об истечении VTIME как (0, io.EOF).
func (t *tarmPort) Read(p []byte) (int, error) {
	n, err := t.port.Read(p)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (t *tarmPort) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *tarmPort) ChunkSize() int {
	return t.chunk
}

// Close закрывает порт
func (t *tarmPort) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}
