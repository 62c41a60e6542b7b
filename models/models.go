package models

import "time"

// HardwareInfo содержит сведения об открытом приборе
type HardwareInfo struct {
	DeviceIndex    int    `json:"device_index"`
	Serial         string `json:"serial"`
	Model          string `json:"model"`
	PartNo         string `json:"part_no"`
	Version        string `json:"version"`
	NumChannels    int    `json:"num_channels"`
	LibraryVersion string `json:"library_version"`
}

// DeviceSlot результат попытки открыть устройство по индексу
type DeviceSlot struct {
	Index  int    `json:"index"`
	Serial string `json:"serial"`
	Status string `json:"status"`
	Code   int    `json:"code"`
	Usable bool   `json:"usable"`
}

// Trigger настройки запуска по фронту
type Trigger struct {
	Edge    int `json:"edge" yaml:"edge"`         // 0 спад, 1 фронт
	LevelMV int `json:"level_mv" yaml:"level_mv"` // мВ
}

// ChannelConfig настройки одного входного канала
type ChannelConfig struct {
	Trigger  `yaml:",inline"`
	OffsetPS int  `json:"offset_ps" yaml:"offset_ps"`
	Enabled  bool `json:"enabled" yaml:"enabled"`
}

// Settings полный набор параметров, применяемых в Configure
type Settings struct {
	// Channels количество используемых каналов, 0 означает все каналы прибора.
	Channels     int     `json:"channels"`
	SyncDivider  int     `json:"sync_divider"`
	Sync         Trigger `json:"sync"`
	SyncOffsetPS int     `json:"sync_offset_ps"`

	// Input настройки по умолчанию для каналов, не перечисленных в Inputs.
	Input ChannelConfig `json:"input"`

	// Inputs настройки по номеру канала: Inputs[0] относится к каналу 0.
	Inputs []ChannelConfig `json:"inputs,omitempty"`

	Bins     int `json:"bins"`
	Binning  int `json:"binning"`
	OffsetNS int `json:"offset_ns"`
}

// InputFor возвращает настройки канала ch.
func (s Settings) InputFor(ch int) ChannelConfig {
	if ch >= 0 && ch < len(s.Inputs) {
		return s.Inputs[ch]
	}
	return s.Input
}

// ConfigResult итог конфигурации прибора
type ConfigResult struct {
	DeviceChannels int     `json:"device_channels"`
	ActiveChannels int     `json:"active_channels"`
	LenCode        int     `json:"len_code"`
	HistLen        int     `json:"hist_len"`
	ResolutionPS   float64 `json:"resolution_ps"`
}

// Rates скорости счета, прочитанные с прибора
type Rates struct {
	SyncRate   int   `json:"sync_rate"`
	CountRates []int `json:"count_rates"`
}

// Total суммарная скорость по всем каналам
func (r Rates) Total() int {
	total := 0
	for _, v := range r.CountRates {
		total += v
	}
	return total
}

// CycleRecord запись одного цикла измерения. StartTicks и EndTicks
// ограничивают чтение гистограмм, ArmTicks фиксируется при запуске.
type CycleRecord struct {
	Index         int     `json:"index"`
	ArmTicks      int64   `json:"arm_ticks"`
	StartTicks    int64   `json:"start_ticks"`
	EndTicks      int64   `json:"end_ticks"`
	TickFrequency int64   `json:"tick_frequency"`
	Flags         int     `json:"flags"`
	Overflow      bool    `json:"overflow"`
	// Matrix снимок гистограмм цикла, не меняется последующими циклами.
	Matrix *Matrix `json:"-"`
}

// Elapsed длительность между StartTicks и EndTicks
func (c *CycleRecord) Elapsed() time.Duration {
	if c.TickFrequency <= 0 {
		return 0
	}
	ticks := c.EndTicks - c.StartTicks
	return time.Duration(float64(ticks) * float64(time.Second) / float64(c.TickFrequency))
}

// ElapsedMs длительность в миллисекундах, как в файле тайминга
func (c *CycleRecord) ElapsedMs() float64 {
	if c.TickFrequency <= 0 {
		return 0
	}
	return float64(c.EndTicks-c.StartTicks) * 1000.0 / float64(c.TickFrequency)
}

// CycleDuration время от запуска измерения до окончания чтения
func (c *CycleRecord) CycleDuration() time.Duration {
	if c.TickFrequency <= 0 {
		return 0
	}
	ticks := c.EndTicks - c.ArmTicks
	return time.Duration(float64(ticks) * float64(time.Second) / float64(c.TickFrequency))
}
