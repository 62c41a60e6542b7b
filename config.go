package multiharp

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iwtcode/multiharpAdapter/acquisition"
	"github.com/iwtcode/multiharpAdapter/internal/config"
	"github.com/iwtcode/multiharpAdapter/mhlib"
	"github.com/iwtcode/multiharpAdapter/models"
	"gopkg.in/yaml.v3"
)

// Форматы вывода.
const (
	FormatStream   = "stream"
	FormatSnapshot = "snapshot"
	FormatBoth     = "both"
)

// Config хранит модель конфигурации приложения
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Output      OutputConfig      `yaml:"output"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

type DeviceConfig struct {
	Index         int    `yaml:"index"`
	SyncDivider   int    `yaml:"sync_divider"`
	SyncEdge      int    `yaml:"sync_edge"`
	SyncLevelMV   int    `yaml:"sync_level_mv"`
	SyncOffsetPS  int    `yaml:"sync_offset_ps"`
	InputEdge     int    `yaml:"input_edge"`
	InputLevelMV  int    `yaml:"input_level_mv"`
	InputOffsetPS int    `yaml:"input_offset_ps"`
	Channels      int    `yaml:"channels"`
	Bins          int    `yaml:"bins"`
	Binning       int    `yaml:"binning"`
	OffsetNS      int    `yaml:"offset_ns"`
	StopOverflow  bool   `yaml:"stop_overflow"`
	StopCount     uint32 `yaml:"stop_count"`

	// Inputs настройки по номеру канала. Незаданные поля берутся из
	// InputEdge, InputLevelMV, InputOffsetPS; канал включен по умолчанию.
	Inputs []InputConfig `yaml:"inputs"`
}

type InputConfig struct {
	Edge     *int  `yaml:"edge"`
	LevelMV  *int  `yaml:"level_mv"`
	OffsetPS *int  `yaml:"offset_ps"`
	Enabled  *bool `yaml:"enabled"`
}

type AcquisitionConfig struct {
	TimeMs         int           `yaml:"time_ms"`
	CyclesPerBatch int           `yaml:"cycles_per_batch"`
	MaxCycles      int           `yaml:"max_cycles"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollMaxWait    time.Duration `yaml:"poll_max_wait"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
}

type OutputConfig struct {
	Format       string `yaml:"format"`
	DataFile     string `yaml:"data_file"`
	TimingFile   string `yaml:"timing_file"`
	SnapshotFile string `yaml:"snapshot_file"`
}

type MetricsConfig struct {
	// TextfilePath файл для выгрузки метрик по завершении, пустой отключает выгрузку.
	TextfilePath string `yaml:"textfile_path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	SavingDays uint   `yaml:"saving_days"`
}

// Default конфигурация прибора по умолчанию.
func Default() *Config {
	cfg := &Config{
		Device: DeviceConfig{
			Index:        -1,
			SyncLevelMV:  -50,
			InputLevelMV: -50,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	def := Default()
	cfg := &Config{
		Device: DeviceConfig{
			Index:         config.GetEnvAsInt("MH_DEVICE_INDEX", def.Device.Index),
			SyncDivider:   config.GetEnvAsInt("MH_SYNC_DIVIDER", def.Device.SyncDivider),
			SyncEdge:      config.GetEnvAsInt("MH_SYNC_EDGE", def.Device.SyncEdge),
			SyncLevelMV:   config.GetEnvAsInt("MH_SYNC_LEVEL_MV", def.Device.SyncLevelMV),
			SyncOffsetPS:  config.GetEnvAsInt("MH_SYNC_OFFSET_PS", def.Device.SyncOffsetPS),
			InputEdge:     config.GetEnvAsInt("MH_INPUT_EDGE", def.Device.InputEdge),
			InputLevelMV:  config.GetEnvAsInt("MH_INPUT_LEVEL_MV", def.Device.InputLevelMV),
			InputOffsetPS: config.GetEnvAsInt("MH_INPUT_OFFSET_PS", def.Device.InputOffsetPS),
			Channels:      config.GetEnvAsInt("MH_CHANNELS", def.Device.Channels),
			Bins:          config.GetEnvAsInt("MH_BINS", def.Device.Bins),
			Binning:       config.GetEnvAsInt("MH_BINNING", def.Device.Binning),
			OffsetNS:      config.GetEnvAsInt("MH_OFFSET_NS", def.Device.OffsetNS),
			StopOverflow:  config.GetEnvAsBool("MH_STOP_OVERFLOW", def.Device.StopOverflow),
			StopCount:     config.GetEnvAsUint32("MH_STOP_COUNT", def.Device.StopCount),
		},
		Acquisition: AcquisitionConfig{
			TimeMs:         config.GetEnvAsInt("MH_ACQ_TIME_MS", def.Acquisition.TimeMs),
			CyclesPerBatch: config.GetEnvAsInt("MH_CYCLES_PER_BATCH", def.Acquisition.CyclesPerBatch),
			MaxCycles:      config.GetEnvAsInt("MH_MAX_CYCLES", def.Acquisition.MaxCycles),
			PollInterval:   config.GetEnvAsDuration("MH_POLL_INTERVAL", def.Acquisition.PollInterval),
			PollMaxWait:    config.GetEnvAsDuration("MH_POLL_MAX_WAIT", def.Acquisition.PollMaxWait),
			SettleDelay:    config.GetEnvAsDuration("MH_SETTLE_DELAY", def.Acquisition.SettleDelay),
		},
		Output: OutputConfig{
			Format:       strings.ToLower(config.GetEnv("MH_OUTPUT_FORMAT", def.Output.Format)),
			DataFile:     config.GetEnv("MH_DATA_FILE", def.Output.DataFile),
			TimingFile:   config.GetEnv("MH_TIMING_FILE", def.Output.TimingFile),
			SnapshotFile: config.GetEnv("MH_SNAPSHOT_FILE", def.Output.SnapshotFile),
		},
		Metrics: MetricsConfig{
			TextfilePath: config.GetEnv("MH_METRICS_TEXTFILE", ""),
		},
		Log: LogConfig{
			Level:      config.GetEnv("LOG_LEVEL", def.Log.Level),
			Dir:        config.GetEnv("LOG_DIR", ""),
			SavingDays: uint(config.GetEnvAsUint32("LOG_SAVING_DAYS", uint32(def.Log.SavingDays))),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile накладывает YAML файл поверх конфигурации из окружения и
// проверяет результат.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.SyncDivider == 0 {
		c.Device.SyncDivider = 1
	}
	if c.Device.Bins == 0 {
		c.Device.Bins = 4096
	}
	if c.Device.StopCount == 0 {
		c.Device.StopCount = 10000
	}
	if c.Acquisition.TimeMs == 0 {
		c.Acquisition.TimeMs = 100
	}
	if c.Acquisition.CyclesPerBatch == 0 {
		c.Acquisition.CyclesPerBatch = 100
	}
	if c.Acquisition.SettleDelay == 0 {
		c.Acquisition.SettleDelay = 150 * time.Millisecond
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatStream
	}
	if c.Output.DataFile == "" {
		c.Output.DataFile = "FileData.dat"
	}
	if c.Output.TimingFile == "" {
		c.Output.TimingFile = "FileTime.txt"
	}
	if c.Output.SnapshotFile == "" {
		c.Output.SnapshotFile = "histomode.out"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.SavingDays == 0 {
		c.Log.SavingDays = 7
	}
}

// Validate проверяет диапазоны, которые можно проверить без прибора.
func (c *Config) Validate() error {
	d := c.Device
	if d.Index < -1 || d.Index >= mhlib.MaxDevNum {
		return fmt.Errorf("device.index must be -1 or 0..%d", mhlib.MaxDevNum-1)
	}
	if d.SyncDivider < mhlib.SyncDivMin || d.SyncDivider > mhlib.SyncDivMax {
		return fmt.Errorf("device.sync_divider must be in %d..%d", mhlib.SyncDivMin, mhlib.SyncDivMax)
	}
	for name, edge := range map[string]int{"device.sync_edge": d.SyncEdge, "device.input_edge": d.InputEdge} {
		if edge != 0 && edge != 1 {
			return fmt.Errorf("%s must be 0 or 1", name)
		}
	}
	for name, lvl := range map[string]int{"device.sync_level_mv": d.SyncLevelMV, "device.input_level_mv": d.InputLevelMV} {
		if lvl < mhlib.TrgLvlMin || lvl > mhlib.TrgLvlMax {
			return fmt.Errorf("%s must be in %d..%d", name, mhlib.TrgLvlMin, mhlib.TrgLvlMax)
		}
	}
	if d.Channels < 0 || d.Channels > mhlib.MaxInpChan {
		return fmt.Errorf("device.channels must be in 0..%d", mhlib.MaxInpChan)
	}
	if _, ok := mhlib.LenCode(d.Bins); !ok {
		return fmt.Errorf("device.bins must be a power of two in %d..%d", mhlib.MinHistLen, mhlib.MaxHistLen)
	}
	if len(d.Inputs) > mhlib.MaxInpChan {
		return fmt.Errorf("device.inputs lists %d channels, at most %d", len(d.Inputs), mhlib.MaxInpChan)
	}
	for i, in := range d.Inputs {
		if in.Edge != nil && *in.Edge != 0 && *in.Edge != 1 {
			return fmt.Errorf("device.inputs[%d].edge must be 0 or 1", i)
		}
		if in.LevelMV != nil && (*in.LevelMV < mhlib.TrgLvlMin || *in.LevelMV > mhlib.TrgLvlMax) {
			return fmt.Errorf("device.inputs[%d].level_mv must be in %d..%d", i, mhlib.TrgLvlMin, mhlib.TrgLvlMax)
		}
		if in.OffsetPS != nil && (*in.OffsetPS < mhlib.ChanOffsMin || *in.OffsetPS > mhlib.ChanOffsMax) {
			return fmt.Errorf("device.inputs[%d].offset_ps must be in %d..%d", i, mhlib.ChanOffsMin, mhlib.ChanOffsMax)
		}
	}
	for name, off := range map[string]int{"device.sync_offset_ps": d.SyncOffsetPS, "device.input_offset_ps": d.InputOffsetPS} {
		if off < mhlib.ChanOffsMin || off > mhlib.ChanOffsMax {
			return fmt.Errorf("%s must be in %d..%d", name, mhlib.ChanOffsMin, mhlib.ChanOffsMax)
		}
	}
	if d.Binning < 0 || d.Binning >= mhlib.MaxBinSteps {
		return fmt.Errorf("device.binning must be in 0..%d", mhlib.MaxBinSteps-1)
	}
	if d.OffsetNS < mhlib.OffsetMin || d.OffsetNS > mhlib.OffsetMax {
		return fmt.Errorf("device.offset_ns must be in %d..%d", mhlib.OffsetMin, mhlib.OffsetMax)
	}

	a := c.Acquisition
	if a.TimeMs < mhlib.AcqTMin || a.TimeMs > mhlib.AcqTMax {
		return fmt.Errorf("acquisition.time_ms must be in %d..%d", mhlib.AcqTMin, mhlib.AcqTMax)
	}
	if a.CyclesPerBatch < 1 {
		return fmt.Errorf("acquisition.cycles_per_batch must be positive")
	}
	if a.MaxCycles < 0 {
		return fmt.Errorf("acquisition.max_cycles must not be negative")
	}
	if a.PollInterval < 0 || a.PollMaxWait < 0 {
		return fmt.Errorf("acquisition poll durations must not be negative")
	}

	switch c.Output.Format {
	case FormatStream, FormatSnapshot, FormatBoth:
	default:
		return fmt.Errorf("output.format must be one of %s, %s, %s", FormatStream, FormatSnapshot, FormatBoth)
	}
	return nil
}

// Settings настройки прибора для Controller.Configure.
func (c *Config) Settings() models.Settings {
	d := c.Device
	def := models.ChannelConfig{
		Trigger:  models.Trigger{Edge: d.InputEdge, LevelMV: d.InputLevelMV},
		OffsetPS: d.InputOffsetPS,
		Enabled:  true,
	}
	var inputs []models.ChannelConfig
	for _, in := range d.Inputs {
		inputs = append(inputs, in.resolve(def))
	}
	return models.Settings{
		Channels:     d.Channels,
		SyncDivider:  d.SyncDivider,
		Sync:         models.Trigger{Edge: d.SyncEdge, LevelMV: d.SyncLevelMV},
		SyncOffsetPS: d.SyncOffsetPS,
		Input:        def,
		Inputs:       inputs,
		Bins:         d.Bins,
		Binning:      d.Binning,
		OffsetNS:     d.OffsetNS,
	}
}

// resolve дополняет незаданные поля значениями def.
func (in InputConfig) resolve(def models.ChannelConfig) models.ChannelConfig {
	out := def
	if in.Edge != nil {
		out.Edge = *in.Edge
	}
	if in.LevelMV != nil {
		out.LevelMV = *in.LevelMV
	}
	if in.OffsetPS != nil {
		out.OffsetPS = *in.OffsetPS
	}
	if in.Enabled != nil {
		out.Enabled = *in.Enabled
	}
	return out
}

func (c *Config) ControllerOptions() acquisition.Options {
	opts := acquisition.DefaultOptions()
	opts.DeviceIndex = c.Device.Index
	opts.PollInterval = c.Acquisition.PollInterval
	opts.PollMaxWait = c.Acquisition.PollMaxWait
	opts.SettleDelay = c.Acquisition.SettleDelay
	opts.StopOverflow = c.Device.StopOverflow
	opts.StopCount = c.Device.StopCount
	return opts
}

func (c *Config) LoopOptions() acquisition.LoopOptions {
	return acquisition.LoopOptions{
		AcquisitionTimeMs: c.Acquisition.TimeMs,
		CyclesPerBatch:    c.Acquisition.CyclesPerBatch,
		MaxCycles:         c.Acquisition.MaxCycles,
	}
}
