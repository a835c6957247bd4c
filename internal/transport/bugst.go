package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// bugstPort — порт через go.bug.st/serial.
type bugstPort struct {
	serial.Port
	chunk int
}

func openBugst(o Options) (Transport, error) {
	p, err := serial.Open(o.URL, &serial.Mode{BaudRate: o.Baud})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", o.URL, err)
	}
	if err := p.SetReadTimeout(o.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial timeout %s: %w", o.URL, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial purge %s: %w", o.URL, err)
	}
	return &bugstPort{Port: p, chunk: o.ChunkSize}, nil
}

func (b *bugstPort) ChunkSize() int {
	return b.chunk
}

// ListPorts возвращает имена последовательных портов системы.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
