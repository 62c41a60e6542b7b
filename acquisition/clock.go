package acquisition

import "time"

// Clock источник тиков для файла тайминга.
type Clock interface {
	Ticks() int64
	Frequency() int64
}

// MonotonicClock считает наносекунды от момента создания по монотонным часам.
type MonotonicClock struct {
	base time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{base: time.Now()}
}

func (m *MonotonicClock) Ticks() int64     { return int64(time.Since(m.base)) }
func (m *MonotonicClock) Frequency() int64 { return int64(time.Second) }
