package recorder

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
)

// SnapshotRecorder хранит только матрицу последнего цикла и записывает ее
// таблицей в Finish. Если Finish не вызван (прерванный прогон), файл
// остается пустым.
type SnapshotRecorder struct {
	mu     sync.Mutex
	log    logrus.FieldLogger
	file   *os.File
	last   *models.Matrix
	closed bool
}

var _ Recorder = (*SnapshotRecorder)(nil)

// NewSnapshotRecorder открывает файл сразу, чтобы ошибка проявилась до
// настройки прибора.
func NewSnapshotRecorder(path string, logger logrus.FieldLogger) (*SnapshotRecorder, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open snapshot file: %w", err)
	}
	return &SnapshotRecorder{log: logger, file: f}, nil
}

func (s *SnapshotRecorder) Record(rec *models.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if rec.Matrix == nil {
		return fmt.Errorf("cycle %d has no histogram data", rec.Index)
	}
	m := rec.Matrix
	if s.last == nil || s.last.Channels() != m.Channels() || s.last.Bins() != m.Bins() {
		s.last = m.Clone()
		return nil
	}
	copy(s.last.Data(), m.Data())
	return nil
}

func (s *SnapshotRecorder) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.last == nil {
		s.log.Warn("no cycles recorded, snapshot file left empty")
		return nil
	}

	w := bufio.NewWriter(s.file)
	if err := WriteTable(w, s.last); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"channels": s.last.Channels(),
		"bins":     s.last.Bins(),
	}).Info("snapshot table written")
	return s.file.Sync()
}

// WriteTable пишет матрицу таблицей: строка заголовков "  chNN " и по
// строке на каждый бин, ширина колонки 6.
func WriteTable(w *bufio.Writer, m *models.Matrix) error {
	for ch := 0; ch < m.Channels(); ch++ {
		fmt.Fprintf(w, "  ch%02d ", ch+1)
	}
	w.WriteString("\n")
	data := m.Data()
	bins := m.Bins()
	for bin := 0; bin < bins; bin++ {
		for ch := 0; ch < m.Channels(); ch++ {
			fmt.Fprintf(w, "%6d ", data[ch*bins+bin])
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotRecorder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
