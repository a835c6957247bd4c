// Package transport — дуплексный байтовый канал до платы (USB-UART моста или TCP).
package transport

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Transport — байтовый канал устройства.
// Read блокируется не дольше таймаута чтения; (0, nil) означает, что данных не было.
// Любая ошибка Read/Write считается фатальной для вызывающего.
type Transport interface {
	io.ReadWriteCloser
	// ChunkSize — предпочтительный размер буфера чтения.
	ChunkSize() int
}

// Options — параметры открытия.
type Options struct {
	URL         string
	Driver      string // tarm, bugst, tcp; пусто — tcp для tcp://, иначе tarm
	Baud        int
	ReadTimeout time.Duration
	ChunkSize   int
}

const defaultChunkSize = 4096

// Open открывает транспорт по Options.
func Open(o Options) (Transport, error) {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 100 * time.Millisecond
	}
	driver := o.Driver
	if driver == "" {
		if strings.HasPrefix(o.URL, "tcp://") {
			driver = "tcp"
		} else {
			driver = "tarm"
		}
	}
	switch driver {
	case "tarm":
		return openTarm(o)
	case "bugst":
		return openBugst(o)
	case "tcp":
		return openTCP(o)
	default:
		return nil, fmt.Errorf("unknown transport driver: %s", driver)
	}
}
