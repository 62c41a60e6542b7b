// Package recorder сохраняет результаты циклов измерения: потоковый
// бинарный файл с файлом тайминга и итоговую текстовую таблицу.
package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize размер заголовка бинарного файла.
const HeaderSize = 256

// Header заголовок потокового файла: версия формата и длина заголовка,
// little endian, остаток до HeaderSize заполнен нулями.
type Header struct {
	Major int16
	Minor int16
	Sub   int16
	Size  int32
}

// DefaultHeader версия формата -2.0.1.
var DefaultHeader = Header{Major: -2, Minor: 0, Sub: 1, Size: HeaderSize}

var ErrBadHeader = errors.New("bad file header")

func (h Header) MarshalBinary() ([]byte, error) {
	if h.Size != HeaderSize {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrBadHeader, h.Size, HeaderSize)
	}
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Major))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Minor))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Sub))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Size))
	return buf, nil
}

func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < 10 {
		return fmt.Errorf("%w: %d bytes", ErrBadHeader, len(buf))
	}
	h.Major = int16(binary.LittleEndian.Uint16(buf[0:2]))
	h.Minor = int16(binary.LittleEndian.Uint16(buf[2:4]))
	h.Sub = int16(binary.LittleEndian.Uint16(buf[4:6]))
	h.Size = int32(binary.LittleEndian.Uint32(buf[6:10]))
	if h.Size != HeaderSize {
		return fmt.Errorf("%w: header size field %d", ErrBadHeader, h.Size)
	}
	return nil
}

// ReadHeader читает и разбирает заголовок из r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	err := h.UnmarshalBinary(buf)
	return h, err
}

func (h Header) String() string {
	return fmt.Sprintf("%d.%d.%d (%d bytes)", h.Major, h.Minor, h.Sub, h.Size)
}
