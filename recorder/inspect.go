package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/iwtcode/multiharpAdapter/models"
)

// Report результат проверки потокового файла.
type Report struct {
	Header        Header `json:"header"`
	FileSize      int64  `json:"file_size"`
	BlockSize     int64  `json:"block_size"`
	Blocks        int64  `json:"blocks"`
	TrailingBytes int64  `json:"trailing_bytes"`
}

// Consistent сообщает, что файл состоит из заголовка и целых блоков.
func (r Report) Consistent() bool { return r.TrailingBytes == 0 }

// Inspect читает заголовок и вычисляет число блоков channels x bins.
func Inspect(path string, channels, bins int) (*Report, error) {
	if channels < 1 || bins < 1 {
		return nil, fmt.Errorf("channels and bins must be positive, got %d x %d", channels, bins)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}

	block := int64(channels) * int64(bins) * 4
	payload := st.Size() - int64(hdr.Size)
	return &Report{
		Header:        hdr,
		FileSize:      st.Size(),
		BlockSize:     block,
		Blocks:        payload / block,
		TrailingBytes: payload % block,
	}, nil
}

// ReadBlock читает блок с номером index из потокового файла.
func ReadBlock(path string, channels, bins, index int) (*models.Matrix, error) {
	m, err := models.NewMatrix(channels, bins)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}
	offset := int64(hdr.Size) + int64(index)*int64(m.SizeBytes())
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, m.Data()); err != nil {
		return nil, fmt.Errorf("read block %d: %w", index, err)
	}
	return m, nil
}

// TimingLine строка файла тайминга.
type TimingLine struct {
	Run     int     `json:"run"`
	Start   int64   `json:"start"`
	End     int64   `json:"end"`
	DeltaMs float64 `json:"delta_ms"`
}

// ReadTiming разбирает файл тайминга, пропуская строку заголовка.
func ReadTiming(path string) ([]TimingLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []TimingLine
	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		text := sc.Text()
		if first {
			first = false
			if text+"\n" != TimingHeader {
				return nil, fmt.Errorf("unexpected timing header %q", text)
			}
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("timing line %d: %d fields", len(lines)+1, len(fields))
		}
		var l TimingLine
		var errs [4]error
		l.Run, errs[0] = strconv.Atoi(fields[0])
		l.Start, errs[1] = strconv.ParseInt(fields[1], 10, 64)
		l.End, errs[2] = strconv.ParseInt(fields[2], 10, 64)
		l.DeltaMs, errs[3] = strconv.ParseFloat(fields[3], 64)
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("timing line %d: %w", len(lines)+1, e)
			}
		}
		lines = append(lines, l)
	}
	return lines, sc.Err()
}

// ErrInconsistent файл данных и файл тайминга не согласованы.
var ErrInconsistent = errors.New("inconsistent recording")

// PairReport результат проверки файла данных вместе с файлом тайминга.
type PairReport struct {
	*Report
	Timing []TimingLine `json:"timing,omitempty"`
}

// CheckPair проверяет, что файл данных состоит из целых блоков и что число
// строк тайминга совпадает с числом блоков. Пустой timingPath отключает
// проверку тайминга. При несогласованности отчет возвращается вместе с
// ошибкой ErrInconsistent.
func CheckPair(dataPath, timingPath string, channels, bins int) (*PairReport, error) {
	rep, err := Inspect(dataPath, channels, bins)
	if err != nil {
		return nil, err
	}
	out := &PairReport{Report: rep}
	if timingPath != "" {
		if out.Timing, err = ReadTiming(timingPath); err != nil {
			return nil, err
		}
	}

	var errs []error
	if !rep.Consistent() {
		errs = append(errs, fmt.Errorf("%w: data file ends with a partial block of %d bytes", ErrInconsistent, rep.TrailingBytes))
	}
	if timingPath != "" && int64(len(out.Timing)) != rep.Blocks {
		errs = append(errs, fmt.Errorf("%w: timing file has %d lines for %d blocks", ErrInconsistent, len(out.Timing), rep.Blocks))
	}
	return out, errors.Join(errs...)
}
