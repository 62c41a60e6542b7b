package recorder

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func cycle(t *testing.T, idx, channels, bins int) *models.CycleRecord {
	t.Helper()
	m, err := models.NewMatrix(channels, bins)
	require.NoError(t, err)
	for ch := 0; ch < channels; ch++ {
		for bin := 0; bin < bins; bin++ {
			require.NoError(t, m.Set(ch, bin, uint32(idx*1000000+ch*10000+bin)))
		}
	}
	return &models.CycleRecord{
		Index:         idx,
		StartTicks:    int64(idx)*1_000_000 + 10,
		EndTicks:      int64(idx)*1_000_000 + 10 + 2_000_000,
		TickFrequency: 1_000_000_000,
		Matrix:        m,
	}
}

func paths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "FileData.dat"), filepath.Join(dir, "FileTime.txt")
}

func TestHeaderRoundTrip(t *testing.T) {
	buf, err := DefaultHeader.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)
	assert.Equal(t, []byte{0xfe, 0xff, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00}, buf[:10])
	assert.Equal(t, make([]byte, HeaderSize-10), buf[10:])

	h, err := ReadHeader(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, DefaultHeader, h)
	assert.Equal(t, "-2.0.1 (256 bytes)", h.String())

	_, err = ReadHeader(bytes.NewReader(buf[:100]))
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = Header{Size: 128}.MarshalBinary()
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestStreamSingleCycleFileSize(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.Record(cycle(t, 0, 4, 1024)))
	require.NoError(t, s.Finish())
	require.NoError(t, s.Close())

	st, err := os.Stat(dataPath)
	require.NoError(t, err)
	assert.Equal(t, int64(16640), st.Size())

	timing, err := os.ReadFile(timingPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(timing), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Run\tStart\tEnd1\tDelta(ms)", lines[0])
	assert.Equal(t, "0\t10\t2000010\t2", lines[1])
}

func TestStreamFileSizeAndBlocks(t *testing.T) {
	const channels, bins, n = 2, 1024, 5
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < n; i++ {
		require.NoError(t, s.Record(cycle(t, i, channels, bins)))
	}
	require.NoError(t, s.Finish())
	assert.Equal(t, n, s.Blocks())
	assert.Equal(t, int64(HeaderSize+n*channels*bins*4), s.Size())

	rep, err := Inspect(dataPath, channels, bins)
	require.NoError(t, err)
	assert.Equal(t, DefaultHeader, rep.Header)
	assert.Equal(t, int64(n), rep.Blocks)
	assert.True(t, rep.Consistent())
	assert.Equal(t, s.Size(), rep.FileSize)

	m, err := ReadBlock(dataPath, channels, bins, 3)
	require.NoError(t, err)
	v, err := m.At(1, 17)
	require.NoError(t, err)
	assert.Equal(t, uint32(3*1000000+10000+17), v)

	timing, err := ReadTiming(timingPath)
	require.NoError(t, err)
	require.Len(t, timing, n)
	for i, l := range timing {
		assert.Equal(t, i, l.Run)
		assert.Equal(t, 2.0, l.DeltaMs)
	}
}

func TestStreamHeaderOnlyWhenNoCycles(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rep, err := Inspect(dataPath, 4, 1024)
	require.NoError(t, err)
	assert.Zero(t, rep.Blocks)
	assert.Equal(t, int64(HeaderSize), rep.FileSize)

	timing, err := ReadTiming(timingPath)
	require.NoError(t, err)
	assert.Empty(t, timing)
}

func TestStreamRejectsShapeChange(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(cycle(t, 0, 2, 1024)))
	assert.Error(t, s.Record(cycle(t, 1, 4, 1024)))
	assert.Error(t, s.Record(&models.CycleRecord{Index: 2}))
	assert.Equal(t, 1, s.Blocks())
}

// shortFile записывает только половину буфера.
type shortFile struct {
	*os.File
}

func (f shortFile) Write(p []byte) (int, error) {
	return f.File.Write(p[:len(p)/2])
}

func TestStreamShortWriteLeavesNoPartialBlock(t *testing.T) {
	const channels, bins = 2, 1024
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(cycle(t, 0, channels, bins)))
	good := s.Size()

	s.data = shortFile{s.data.(*os.File)}
	err = s.Record(cycle(t, 1, channels, bins))
	require.ErrorIs(t, err, io.ErrShortWrite)

	st, err := os.Stat(dataPath)
	require.NoError(t, err)
	assert.Equal(t, good, st.Size())
	assert.Equal(t, 1, s.Blocks())

	rep, err := Inspect(dataPath, channels, bins)
	require.NoError(t, err)
	assert.True(t, rep.Consistent())

	timing, err := ReadTiming(timingPath)
	require.NoError(t, err)
	assert.Len(t, timing, 1)
}

func TestStreamTimingFailureRollsBackBlock(t *testing.T) {
	const channels, bins = 2, 1024
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(cycle(t, 0, channels, bins)))
	good := s.Size()

	s.timing = shortFile{s.timing.(*os.File)}
	err = s.Record(cycle(t, 1, channels, bins))
	require.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 1, s.Blocks())

	st, err := os.Stat(dataPath)
	require.NoError(t, err)
	assert.Equal(t, good, st.Size())

	timing, err := ReadTiming(timingPath)
	require.NoError(t, err)
	assert.Len(t, timing, 1)

	s.timing = s.timing.(shortFile).File
	require.NoError(t, s.Record(cycle(t, 2, channels, bins)))
	require.NoError(t, s.Finish())

	check, err := CheckPair(dataPath, timingPath, channels, bins)
	require.NoError(t, err)
	assert.Equal(t, int64(2), check.Blocks)
	assert.Len(t, check.Timing, 2)
}

func TestStreamOpenFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStreamRecorder(filepath.Join(dir, "missing", "data.dat"), filepath.Join(dir, "time.txt"), quietLogger())
	assert.Error(t, err)

	_, err = NewStreamRecorder(filepath.Join(dir, "data.dat"), filepath.Join(dir, "missing", "time.txt"), quietLogger())
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "data.dat"))
	assert.True(t, os.IsNotExist(statErr), "data file is not created when the timing file fails")
}

func TestStreamClosed(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Record(cycle(t, 0, 1, 1024)), ErrClosed)
	assert.ErrorIs(t, s.Finish(), ErrClosed)
}

func TestSnapshotKeepsLastCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	s, err := NewSnapshotRecorder(path, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(cycle(t, i, 2, 1024)))
	}

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, st.Size(), "nothing is written before Finish")

	require.NoError(t, s.Finish())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1+1024)
	assert.Equal(t, "  ch01   ch02 ", lines[0])
	assert.Equal(t, fmt.Sprintf("%6d %6d ", 2000000, 2010000), lines[1])
	assert.Equal(t, fmt.Sprintf("%6d %6d ", 2001023, 2011023), lines[1024])
}

func TestSnapshotWithoutCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	s, err := NewSnapshotRecorder(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Finish())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteTableWidths(t *testing.T) {
	m, err := models.NewMatrix(3, 2)
	require.NoError(t, err)
	require.NoError(t, m.Set(0, 0, 7))
	require.NoError(t, m.Set(2, 1, 123456))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteTable(w, m))
	require.NoError(t, w.Flush())
	assert.Equal(t, "  ch01   ch02   ch03 \n     7      0      0 \n     0      0 123456 \n", buf.String())
}

func TestMultiFansOut(t *testing.T) {
	dataPath, timingPath := paths(t)
	snapPath := filepath.Join(filepath.Dir(dataPath), "snapshot.txt")

	stream, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	snap, err := NewSnapshotRecorder(snapPath, quietLogger())
	require.NoError(t, err)

	m := Multi{stream, snap}
	require.NoError(t, m.Record(cycle(t, 0, 1, 1024)))
	require.NoError(t, m.Record(cycle(t, 1, 1, 1024)))
	require.NoError(t, m.Finish())
	require.NoError(t, m.Close())

	rep, err := Inspect(dataPath, 1, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Blocks)

	data, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "  ch01 \n"+fmt.Sprintf("%6d ", 1000000)))
}

func TestInspectTrailingBytes(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Record(cycle(t, 0, 1, 1024)))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(dataPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rep, err := Inspect(dataPath, 1, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Blocks)
	assert.Equal(t, int64(3), rep.TrailingBytes)
	assert.False(t, rep.Consistent())

	_, err = Inspect(dataPath, 0, 1024)
	assert.Error(t, err)
}

func TestCheckPairDetectsMismatch(t *testing.T) {
	dataPath, timingPath := paths(t)
	s, err := NewStreamRecorder(dataPath, timingPath, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Record(cycle(t, 0, 1, 1024)))
	require.NoError(t, s.Record(cycle(t, 1, 1, 1024)))
	require.NoError(t, s.Close())

	rep, err := CheckPair(dataPath, timingPath, 1, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Blocks)

	rep, err = CheckPair(dataPath, "", 1, 1024)
	require.NoError(t, err)
	assert.Empty(t, rep.Timing)

	timing, err := os.ReadFile(timingPath)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(timing), "\n")
	require.NoError(t, os.WriteFile(timingPath, []byte(lines[0]+lines[1]), 0o644))

	rep, err = CheckPair(dataPath, timingPath, 1, 1024)
	require.ErrorIs(t, err, ErrInconsistent)
	assert.ErrorContains(t, err, "1 lines for 2 blocks")
	require.NotNil(t, rep)
	assert.Len(t, rep.Timing, 1)

	f, err := os.OpenFile(dataPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = CheckPair(dataPath, "", 1, 1024)
	require.ErrorIs(t, err, ErrInconsistent)
	assert.ErrorContains(t, err, "partial block of 1 bytes")

	_, err = CheckPair(dataPath, filepath.Join(t.TempDir(), "missing.txt"), 1, 1024)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInconsistent)
}
