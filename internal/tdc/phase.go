package tdc

// DefaultStartupSkip — сколько первых пригодных отсчётов отбрасывается после старта.
const DefaultStartupSkip = 2

// PhaseDetector выбирает ближайший к границе гейта фронт опорного сигнала:
// слева (последний импульс предыдущего интервала) или справа (первый импульс текущего).
// Результат — знаковая ошибка фазы в тактах счётчика.
type PhaseDetector struct {
	prevCt2      int64
	prevMidpoint int64
	prevValid    bool
	skip         int
}

// NewPhaseDetector создаёт детектор, подавляющий первые skip отсчётов.
func NewPhaseDetector(skip int) *PhaseDetector {
	if skip < 0 {
		skip = 0
	}
	return &PhaseDetector{skip: skip}
}

// Process обрабатывает очередной интервал. ok == false — наблюдения нет.
func (d *PhaseDetector) Process(m Measurement) (errCycles int64, ok bool) {
	ct0 := int64(m.T0) + 1
	midpoint := ct0 / 2
	ct2 := int64(m.T0) - int64(m.T2)

	cn := d.prevCt2
	leftOK := d.prevValid && cn < d.prevMidpoint

	cp := int64(m.T1) + 1
	rightOK := m.T12Valid && cp <= midpoint

	switch {
	case rightOK && (!leftOK || cp <= cn):
		errCycles, ok = cp, true
	case leftOK:
		errCycles, ok = -cn, true
	}

	// состояние предыдущего интервала обновляется всегда
	d.prevCt2 = ct2
	d.prevMidpoint = midpoint
	d.prevValid = m.T12Valid

	if ok && d.skip > 0 {
		d.skip--
		return 0, false
	}
	return errCycles, ok
}

// Settled — true, когда стартовые отсчёты уже отброшены.
func (d *PhaseDetector) Settled() bool {
	return d.skip == 0
}
