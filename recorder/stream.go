package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
)

// Recorder общий интерфейс способов записи.
type Recorder interface {
	Record(rec *models.CycleRecord) error
	Finish() error
	Close() error
}

// TimingHeader первая строка файла тайминга.
const TimingHeader = "Run\tStart\tEnd1\tDelta(ms)\n"

var ErrClosed = errors.New("recorder closed")

// blockFile часть *os.File, нужная для записи блоков и отката.
type blockFile interface {
	io.WriteSeeker
	Truncate(size int64) error
	Sync() error
	Close() error
}

// StreamRecorder пишет заголовок один раз при создании, затем на каждый
// цикл один блок channels x bins значений uint32 (по каналам, little endian)
// и строку в файл тайминга. Блок пишется одним вызовом Write; при неполной
// записи блока или строки тайминга оба файла обрезаются до прежнего
// размера, так что число блоков всегда равно числу строк тайминга.
type StreamRecorder struct {
	mu     sync.Mutex
	log    logrus.FieldLogger
	data       blockFile
	timing     blockFile
	size       int64
	timingSize int64
	blocks int
	block  int
	buf    []byte
	closed bool
}

var _ Recorder = (*StreamRecorder)(nil)

// NewStreamRecorder создает (или перезаписывает) оба файла и пишет заголовки.
func NewStreamRecorder(dataPath, timingPath string, logger logrus.FieldLogger) (*StreamRecorder, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	timing, err := os.OpenFile(timingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open timing file: %w", err)
	}
	if _, err := io.WriteString(timing, TimingHeader); err != nil {
		timing.Close()
		return nil, fmt.Errorf("write timing header: %w", err)
	}

	data, err := os.OpenFile(dataPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		timing.Close()
		return nil, fmt.Errorf("cannot open output file: %w", err)
	}
	hdr, err := DefaultHeader.MarshalBinary()
	if err == nil {
		_, err = data.Write(hdr)
	}
	if err != nil {
		data.Close()
		timing.Close()
		return nil, fmt.Errorf("write data header: %w", err)
	}

	return &StreamRecorder{
		log:        logger,
		data:       data,
		timing:     timing,
		size:       HeaderSize,
		timingSize: int64(len(TimingHeader)),
	}, nil
}

// Blocks количество записанных блоков.
func (s *StreamRecorder) Blocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// Size текущий размер бинарного файла.
func (s *StreamRecorder) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *StreamRecorder) Record(rec *models.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if rec.Matrix == nil {
		return fmt.Errorf("cycle %d has no histogram data", rec.Index)
	}
	n := rec.Matrix.SizeBytes()
	if s.block == 0 {
		s.block = n
	} else if n != s.block {
		return fmt.Errorf("block size changed from %d to %d bytes", s.block, n)
	}

	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	buf := s.buf[:n]
	for i, v := range rec.Matrix.Data() {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}

	line := fmt.Sprintf("%d\t%d\t%d\t%.0f\n", rec.Index, rec.StartTicks, rec.EndTicks, rec.ElapsedMs())

	if err := writeFull(s.data, buf); err != nil {
		s.rollback()
		return fmt.Errorf("write block %d: %w", rec.Index, err)
	}
	if err := writeFull(s.timing, []byte(line)); err != nil {
		s.rollback()
		return fmt.Errorf("write timing line %d: %w", rec.Index, err)
	}
	s.size += int64(n)
	s.timingSize += int64(len(line))
	s.blocks++
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// rollback возвращает оба файла к размеру до неудачной записи.
func (s *StreamRecorder) rollback() {
	if err := truncateTo(s.data, s.size); err != nil {
		s.log.WithError(err).Error("failed to truncate partial block")
	}
	if err := truncateTo(s.timing, s.timingSize); err != nil {
		s.log.WithError(err).Error("failed to truncate partial timing line")
	}
}

func truncateTo(f blockFile, size int64) error {
	if err := f.Truncate(size); err != nil {
		return err
	}
	_, err := f.Seek(size, io.SeekStart)
	return err
}

// Finish сбрасывает оба файла на диск.
func (s *StreamRecorder) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.log.WithFields(logrus.Fields{"blocks": s.blocks, "bytes": s.size}).Info("stream recording finished")
	return errors.Join(s.data.Sync(), s.timing.Sync())
}

func (s *StreamRecorder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.data.Close(), s.timing.Close())
}
