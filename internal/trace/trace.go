// Package trace — CSV трасса петли ФАПЧ, одна строка на такт.
//
// Колонки: t, valid, err_cyc, err_rel, pid_p, pid_i, tune, tune_int.
// Первая строка — комментарий с идентификатором запуска.
package trace

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Record — одна строка трассы.
type Record struct {
	Time      float64
	Valid     bool
	ErrCycles int64
	RelError  float64
	P, I      float64
	Tune      float64
	Code      uint32
}

// Writer пишет записи в CSV. Вызывается только из цикла чтения.
type Writer struct {
	f   io.Closer
	buf *bufio.Writer
	csv *csv.Writer
	row []string
}

// Create открывает файл на дозапись и пишет строку-комментарий.
func Create(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	w := newWriter(f, f)
	if _, err := fmt.Fprintf(w.buf, "# tdc-sync run %s\n", runID); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("trace header: %w", err)
	}
	return w, nil
}

func newWriter(w io.Writer, c io.Closer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{f: c, buf: buf, csv: csv.NewWriter(buf), row: make([]string, 8)}
}

// Write добавляет строку. Данные сбрасываются в файл при Flush/Close.
func (w *Writer) Write(r Record) error {
	valid := "0"
	if r.Valid {
		valid = "1"
	}
	w.row[0] = strconv.FormatFloat(r.Time, 'f', 6, 64)
	w.row[1] = valid
	w.row[2] = strconv.FormatInt(r.ErrCycles, 10)
	w.row[3] = strconv.FormatFloat(r.RelError, 'g', -1, 64)
	w.row[4] = strconv.FormatFloat(r.P, 'g', -1, 64)
	w.row[5] = strconv.FormatFloat(r.I, 'g', -1, 64)
	w.row[6] = strconv.FormatFloat(r.Tune, 'g', -1, 64)
	w.row[7] = strconv.FormatUint(uint64(r.Code), 10)
	return w.csv.Write(w.row)
}

// Flush сбрасывает буферы на диск.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close сбрасывает буферы и закрывает файл.
func (w *Writer) Close() error {
	ferr := w.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
