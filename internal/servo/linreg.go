package servo

import "time"

// LinRegWindow — размер окна линейной регрессии
const LinRegWindow = 64

// MaxDrift — ограничение оценки относительного ухода частоты (±100 ppm)
const MaxDrift = 100e-6

// LinReg — оценка ухода частоты линейной регрессией по окну отсчётов фазы.
// x = время в секундах (накопленное), y = ошибка фазы в нс; slope = ns/s → доля = slope/1e9.
// В петле ФАПЧ не участвует, используется только для мониторинга.
type LinReg struct {
	xs      [LinRegWindow]float64
	ys      [LinRegWindow]float64
	n       int
	idx     int
	timeSec float64
}

// NewLinReg создаёт пустое окно.
func NewLinReg() *LinReg {
	return &LinReg{}
}

// Update добавляет сэмпл (errorNs, dt) в окно и возвращает оценку ухода частоты.
// Пока окно не заполнено, возвращает 0.
func (l *LinReg) Update(errorNs float64, dt time.Duration) float64 {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		dtSec = 1.0
	}
	l.timeSec += dtSec
	l.xs[l.idx] = l.timeSec
	l.ys[l.idx] = errorNs
	l.idx = (l.idx + 1) % LinRegWindow
	if l.n < LinRegWindow {
		l.n++
	}
	if l.n < LinRegWindow {
		return 0
	}
	return l.Slope()
}

// Slope — текущая оценка по заполненной части окна.
func (l *LinReg) Slope() float64 {
	if l.n < 2 {
		return 0
	}
	n := float64(l.n)
	// центрирование по последнему времени, чтобы не терять точность на длинных прогонах
	x0 := l.timeSec
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < l.n; i++ {
		x := l.xs[i] - x0
		sumX += x
		sumY += l.ys[i]
		sumXY += x * l.ys[i]
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom // ns/s
	return clamp(slope/1e9, MaxDrift)
}

// Reset сбрасывает окно и накопленное время
func (l *LinReg) Reset() {
	*l = LinReg{}
}
