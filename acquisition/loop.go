package acquisition

import (
	"context"
	"fmt"

	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
)

// Recorder сохраняет результаты циклов. Record вызывается после каждого
// цикла до начала следующего, Finish только при штатном завершении цикла
// измерений.
type Recorder interface {
	Record(rec *models.CycleRecord) error
	Finish() error
}

// LoopOptions параметры цикла измерений.
type LoopOptions struct {
	AcquisitionTimeMs int
	// CyclesPerBatch количество циклов, запускаемых одной командой оператора.
	CyclesPerBatch int
	// MaxCycles общий лимит циклов, 0 означает без ограничения.
	MaxCycles int
}

// LoopStats итог работы InteractiveLoop.
type LoopStats struct {
	Rounds          int
	Cycles          int
	Overflows       int
	BudgetExhausted bool
}

// InteractiveLoop повторяет раунды: очистка памяти гистограмм, команда
// оператора на запуск, чтение скоростей, пачка циклов с записью каждого,
// вопрос о продолжении. Завершается по команде оператора или по исчерпанию
// MaxCycles. Finish у recorder вызывается только при штатном выходе.
func (c *Controller) InteractiveLoop(ctx context.Context, opts LoopOptions, op Operator, rec Recorder) (LoopStats, error) {
	var stats LoopStats
	if opts.CyclesPerBatch <= 0 {
		return stats, fmt.Errorf("cycles per batch must be positive, got %d", opts.CyclesPerBatch)
	}

	for {
		if err := c.ClearHistMem(); err != nil {
			return stats, err
		}

		start, err := op.WaitStart(ctx)
		if err != nil {
			return stats, err
		}
		if !start {
			break
		}

		if _, err := c.ReadRates(); err != nil {
			return stats, err
		}

		stats.Rounds++
		for i := 0; i < opts.CyclesPerBatch; i++ {
			if opts.MaxCycles > 0 && stats.Cycles >= opts.MaxCycles {
				stats.BudgetExhausted = true
				break
			}
			record, err := c.RunCycle(ctx, opts.AcquisitionTimeMs)
			if err != nil {
				return stats, err
			}
			if err := rec.Record(record); err != nil {
				return stats, fmt.Errorf("record cycle %d: %w", record.Index, err)
			}
			stats.Cycles++
			if record.Overflow {
				stats.Overflows++
			}
		}
		c.log.WithFields(logrus.Fields{
			"round":  stats.Rounds,
			"cycles": stats.Cycles,
		}).Info("batch complete")

		if stats.BudgetExhausted || (opts.MaxCycles > 0 && stats.Cycles >= opts.MaxCycles) {
			stats.BudgetExhausted = true
			break
		}

		more, err := op.Continue(ctx)
		if err != nil {
			return stats, err
		}
		if !more {
			break
		}
	}

	if err := rec.Finish(); err != nil {
		return stats, fmt.Errorf("finish recording: %w", err)
	}
	return stats, nil
}
