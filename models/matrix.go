package models

import (
	"errors"
	"fmt"
)

// Предельные размеры матрицы, совпадают с ограничениями MHLib.
const (
	MaxChannels = 64
	MaxBins     = 65536
)

var ErrOutOfRange = errors.New("matrix index out of range")

// Matrix гистограммы каналов: channels строк по bins счетов, хранение
// построчное (channel-major). Размер задается фактическим числом каналов и
// бинов, а не максимумом прибора.
type Matrix struct {
	channels int
	bins     int
	data     []uint32
}

// NewMatrix создает обнуленную матрицу channels x bins.
func NewMatrix(channels, bins int) (*Matrix, error) {
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("channels must be in 1..%d, got %d", MaxChannels, channels)
	}
	if bins < 1 || bins > MaxBins {
		return nil, fmt.Errorf("bins must be in 1..%d, got %d", MaxBins, bins)
	}
	return &Matrix{
		channels: channels,
		bins:     bins,
		data:     make([]uint32, channels*bins),
	}, nil
}

func (m *Matrix) Channels() int { return m.channels }
func (m *Matrix) Bins() int     { return m.bins }
func (m *Matrix) Len() int      { return len(m.data) }

// SizeBytes размер блока в файле потоковой записи.
func (m *Matrix) SizeBytes() int { return len(m.data) * 4 }

func (m *Matrix) index(ch, bin int) (int, error) {
	if ch < 0 || ch >= m.channels || bin < 0 || bin >= m.bins {
		return 0, fmt.Errorf("%w: [%d][%d] in %dx%d", ErrOutOfRange, ch, bin, m.channels, m.bins)
	}
	return ch*m.bins + bin, nil
}

func (m *Matrix) At(ch, bin int) (uint32, error) {
	i, err := m.index(ch, bin)
	if err != nil {
		return 0, err
	}
	return m.data[i], nil
}

func (m *Matrix) Set(ch, bin int, v uint32) error {
	i, err := m.index(ch, bin)
	if err != nil {
		return err
	}
	m.data[i] = v
	return nil
}

// Row возвращает срез строки канала без копирования.
func (m *Matrix) Row(ch int) ([]uint32, error) {
	if ch < 0 || ch >= m.channels {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrOutOfRange, ch, m.channels)
	}
	return m.data[ch*m.bins : (ch+1)*m.bins], nil
}

// Data весь буфер матрицы в порядке записи в файл.
func (m *Matrix) Data() []uint32 { return m.data }

func (m *Matrix) Reset() { clear(m.data) }

// Clone глубокая копия.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{channels: m.channels, bins: m.bins, data: make([]uint32, len(m.data))}
	copy(c.data, m.data)
	return c
}

// Total сумма всех счетов.
func (m *Matrix) Total() uint64 {
	var total uint64
	for _, v := range m.data {
		total += uint64(v)
	}
	return total
}

// ChannelTotal сумма счетов одного канала.
func (m *Matrix) ChannelTotal(ch int) (uint64, error) {
	row, err := m.Row(ch)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, v := range row {
		total += uint64(v)
	}
	return total, nil
}
