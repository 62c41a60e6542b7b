package acquisition

import (
	"context"
	"time"
)

// waitForCompletion опрашивает MH_CTCStatus, пока прибор не сообщит о
// завершении измерения. При PollInterval == 0 опрос идет без пауз, при
// PollMaxWait == 0 ожидание не ограничено. Отмена контекста прерывает
// ожидание. Возвращает количество выполненных опросов.
func (c *Controller) waitForCompletion(ctx context.Context) (int, error) {
	var deadline time.Time
	if c.opts.PollMaxWait > 0 {
		deadline = time.Now().Add(c.opts.PollMaxWait)
	}

	var ticker *time.Ticker
	if c.opts.PollInterval > 0 {
		ticker = time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()
	}

	polls := 0
	for {
		status, rc := c.lib.CTCStatus(c.dev)
		polls++
		if err := c.call("MH_CTCStatus", rc); err != nil {
			return polls, err
		}
		if status != 0 {
			return polls, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			c.log.WithField("polls", polls).Errorf("measurement not complete after %s", c.opts.PollMaxWait)
			return polls, ErrPollTimeout
		}

		if ticker == nil {
			if err := ctx.Err(); err != nil {
				return polls, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return polls, ctx.Err()
		case <-ticker.C:
		}
	}
}

// sleepCtx ждет d или отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
