package acquisition

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Operator управляет циклом измерений со стороны пользователя.
type Operator interface {
	// WaitStart ждет команды на запуск пачки циклов. false означает выход.
	WaitStart(ctx context.Context) (bool, error)
	// Continue спрашивает после пачки, продолжать ли. false означает выход.
	Continue(ctx context.Context) (bool, error)
}

// ConsoleOperator протокол консоли: RETURN запускает измерение, после
// пачки 'q' завершает работу, любой другой ввод продолжает. Решение
// принимается по первому символу строки. Конец ввода считается командой
// выхода.
//
// Ввод читает одна горутина на оператора. После отмены контекста она
// остается ждать ввода до завершения процесса, а прочитанная строка
// достается следующему вызову.
type ConsoleOperator struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

var _ Operator = (*ConsoleOperator)(nil)

func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{in: bufio.NewReader(in), out: out}
}

func (o *ConsoleOperator) WaitStart(ctx context.Context) (bool, error) {
	fmt.Fprint(o.out, "\npress RETURN to start measurement")
	line, err := o.readLine(ctx)
	if err != nil {
		return false, err
	}
	return !isQuit(line), nil
}

func (o *ConsoleOperator) Continue(ctx context.Context) (bool, error) {
	fmt.Fprint(o.out, "\nEnter c to continue or q to quit and save the count data.")
	line, err := o.readLine(ctx)
	if err != nil {
		return false, err
	}
	return !isQuit(line), nil
}

func isQuit(line string) bool {
	return len(line) > 0 && line[0] == 'q'
}

func (o *ConsoleOperator) reader() {
	defer close(o.lines)
	for {
		line, err := o.in.ReadString('\n')
		o.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func (o *ConsoleOperator) readLine(ctx context.Context) (string, error) {
	o.once.Do(func() {
		o.lines = make(chan lineResult)
		go o.reader()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-o.lines:
		if !ok {
			return "q", nil
		}
		if errors.Is(r.err, io.EOF) {
			if r.line == "" {
				return "q", nil
			}
			return r.line, nil
		}
		return r.line, r.err
	}
}

// BatchOperator запускает заданное количество пачек без участия
// пользователя, для неинтерактивных прогонов.
type BatchOperator struct {
	Rounds int
	done   int
}

var _ Operator = (*BatchOperator)(nil)

func (b *BatchOperator) WaitStart(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.done < b.Rounds, nil
}

func (b *BatchOperator) Continue(ctx context.Context) (bool, error) {
	b.done++
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.done < b.Rounds, nil
}
