package mhlib

import (
	"math/rand"
	"strings"
	"sync"
)

// SimConfig описывает поведение симулированных устройств.
type SimConfig struct {
	LibVersion string
	// Devices сопоставляет индекс устройства с серийным номером. Индексы,
	// которых нет в карте, отвечают MH_ERROR_DEVICE_OPEN_FAIL.
	Devices map[int]string
	// OpenErrors задает код ошибки OpenDevice для отдельных индексов.
	OpenErrors map[int]int

	Model       string
	PartNo      string
	Version     string
	NumChannels int

	BaseResolution float64 // ps
	SyncRate       int     // 1/s
	CountRate      int     // 1/s на канал
	Warnings       int

	// PollsUntilDone количество вызовов CTCStatus до завершения измерения.
	PollsUntilDone int
	// OverflowLevel при ненулевом значении выставляет FlagOverflow, когда
	// какой-либо бин достигает этого значения.
	OverflowLevel uint32
	// Failures заставляет функцию (по имени, например "MH_SetBinning")
	// возвращать заданный код ошибки.
	Failures map[string]int

	Seed int64
}

// DefaultSimConfig одно устройство на 4 канала с умеренной загрузкой.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		LibVersion:     LibVersion,
		Devices:        map[int]string{0: "1045678"},
		Model:          "MultiHarp 150 4N",
		PartNo:         "930043",
		Version:        "2.0",
		NumChannels:    4,
		BaseResolution: 5,
		SyncRate:       20000000,
		CountRate:      100000,
		PollsUntilDone: 3,
		Seed:           1,
	}
}

type simDevice struct {
	initialized bool
	histLen     int
	binning     int
	enabled     []bool
	inputs      []SimInput
	running     bool
	polls       int
	tacq        int
	stopOvfl    bool
	stopCount   uint32
	flags       int
	hist        [][]uint32
}

// Simulator реализует Library без оборудования. Безопасен для
// конкурентного использования.
type Simulator struct {
	mu      sync.Mutex
	cfg     SimConfig
	rng     *rand.Rand
	devices map[int]*simDevice
	calls   []string
}

var _ Library = (*Simulator)(nil)

func NewSimulator(cfg SimConfig) *Simulator {
	if cfg.LibVersion == "" {
		cfg.LibVersion = LibVersion
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = 4
	}
	if cfg.NumChannels > MaxInpChan {
		cfg.NumChannels = MaxInpChan
	}
	if cfg.BaseResolution <= 0 {
		cfg.BaseResolution = 5
	}
	return &Simulator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		devices: make(map[int]*simDevice),
	}
}

// Calls возвращает журнал вызовов в порядке их выполнения.
func (s *Simulator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// SetFailure меняет код ошибки функции во время работы; code == 0 снимает отказ.
func (s *Simulator) SetFailure(name string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Failures == nil {
		s.cfg.Failures = make(map[string]int)
	}
	if code == 0 {
		delete(s.cfg.Failures, name)
		return
	}
	s.cfg.Failures[name] = code
}

// enter записывает вызов и возвращает внедренную ошибку, если она задана.
// Вызывается с захваченным мьютексом.
func (s *Simulator) enter(name string) int {
	s.calls = append(s.calls, name)
	if code, ok := s.cfg.Failures[name]; ok {
		return code
	}
	return 0
}

// device возвращает инициализированное устройство или код ошибки.
func (s *Simulator) device(devidx int) (*simDevice, int) {
	d, ok := s.devices[devidx]
	if !ok {
		return nil, ErrorDeviceNotOpen
	}
	if !d.initialized {
		return nil, ErrorNotInitialized
	}
	return d, 0
}

func (s *Simulator) GetLibraryVersion() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetLibraryVersion"); rc < 0 {
		return "", rc
	}
	return s.cfg.LibVersion, 0
}

func (s *Simulator) GetErrorString(code int) (string, int) {
	return ErrorText(code), 0
}

func (s *Simulator) OpenDevice(devidx int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_OpenDevice"); rc < 0 {
		return "", rc
	}
	if devidx < 0 || devidx >= MaxDevNum {
		return "", ErrorInvalidArgument
	}
	if code, ok := s.cfg.OpenErrors[devidx]; ok {
		return "", code
	}
	serial, ok := s.cfg.Devices[devidx]
	if !ok {
		return "", ErrorDeviceOpenFail
	}
	if _, open := s.devices[devidx]; !open {
		s.devices[devidx] = &simDevice{}
	}
	return serial, 0
}

func (s *Simulator) CloseDevice(devidx int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_CloseDevice"); rc < 0 {
		return rc
	}
	delete(s.devices, devidx)
	return 0
}

func (s *Simulator) Initialize(devidx, mode, refsource int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_Initialize"); rc < 0 {
		return rc
	}
	d, ok := s.devices[devidx]
	if !ok {
		return ErrorDeviceNotOpen
	}
	if mode != ModeHist && mode != ModeT2 && mode != ModeT3 {
		return ErrorInvalidMode
	}
	if refsource < 0 {
		return ErrorInvalidArgument
	}
	*d = simDevice{
		initialized: true,
		histLen:     MaxHistLen,
		enabled:     make([]bool, s.cfg.NumChannels),
		inputs:      make([]SimInput, s.cfg.NumChannels),
		stopOvfl:    true,
		stopCount:   StopCntMax,
	}
	for i := range d.enabled {
		d.enabled[i] = true
	}
	d.allocate(s.cfg.NumChannels)
	return 0
}

func (d *simDevice) allocate(channels int) {
	d.hist = make([][]uint32, channels)
	for i := range d.hist {
		d.hist[i] = make([]uint32, d.histLen)
	}
}

func (s *Simulator) GetHardwareInfo(devidx int) (string, string, string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetHardwareInfo"); rc < 0 {
		return "", "", "", rc
	}
	if _, rc := s.device(devidx); rc < 0 {
		return "", "", "", rc
	}
	return s.cfg.Model, s.cfg.PartNo, s.cfg.Version, 0
}

func (s *Simulator) GetNumOfInputChannels(devidx int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetNumOfInputChannels"); rc < 0 {
		return 0, rc
	}
	if _, rc := s.device(devidx); rc < 0 {
		return 0, rc
	}
	return s.cfg.NumChannels, 0
}

// setter обслуживает функции, которые только проверяют аргументы.
func (s *Simulator) setter(name string, devidx int, valid bool, apply func(d *simDevice)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter(name); rc < 0 {
		return rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return rc
	}
	if !valid {
		return ErrorInvalidArgument
	}
	if apply != nil {
		apply(d)
	}
	return 0
}

func (s *Simulator) validChannel(ch int) bool { return ch >= 0 && ch < s.cfg.NumChannels }

func (s *Simulator) SetSyncDiv(devidx, div int) int {
	return s.setter("MH_SetSyncDiv", devidx, div >= SyncDivMin && div <= SyncDivMax, nil)
}

func (s *Simulator) SetSyncEdgeTrg(devidx, level, edge int) int {
	ok := level >= TrgLvlMin && level <= TrgLvlMax && (edge == 0 || edge == 1)
	return s.setter("MH_SetSyncEdgeTrg", devidx, ok, nil)
}

func (s *Simulator) SetSyncChannelOffset(devidx, value int) int {
	return s.setter("MH_SetSyncChannelOffset", devidx, value >= ChanOffsMin && value <= ChanOffsMax, nil)
}

func (s *Simulator) SetInputEdgeTrg(devidx, channel, level, edge int) int {
	ok := s.validChannel(channel) && level >= TrgLvlMin && level <= TrgLvlMax && (edge == 0 || edge == 1)
	return s.setter("MH_SetInputEdgeTrg", devidx, ok, func(d *simDevice) {
		d.inputs[channel].Edge = edge
		d.inputs[channel].LevelMV = level
	})
}

func (s *Simulator) SetInputChannelOffset(devidx, channel, value int) int {
	ok := s.validChannel(channel) && value >= ChanOffsMin && value <= ChanOffsMax
	return s.setter("MH_SetInputChannelOffset", devidx, ok, func(d *simDevice) {
		d.inputs[channel].OffsetPS = value
	})
}

// SimInput состояние входного канала симулятора.
type SimInput struct {
	Edge     int
	LevelMV  int
	OffsetPS int
	Enabled  bool
}

// Inputs возвращает состояние входных каналов открытого и
// инициализированного устройства.
func (s *Simulator) Inputs(devidx int) ([]SimInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[devidx]
	if !ok || !d.initialized {
		return nil, false
	}
	out := make([]SimInput, len(d.inputs))
	copy(out, d.inputs)
	for i := range out {
		out[i].Enabled = d.enabled[i]
	}
	return out, true
}

func (s *Simulator) SetInputChannelEnable(devidx, channel, enable int) int {
	ok := s.validChannel(channel) && (enable == 0 || enable == 1)
	return s.setter("MH_SetInputChannelEnable", devidx, ok, func(d *simDevice) {
		d.enabled[channel] = enable == 1
	})
}

func (s *Simulator) SetStopOverflow(devidx, stopOvfl int, stopcount uint32) int {
	ok := (stopOvfl == 0 || stopOvfl == 1) && stopcount >= StopCntMin
	return s.setter("MH_SetStopOverflow", devidx, ok, func(d *simDevice) {
		d.stopOvfl = stopOvfl == 1
		d.stopCount = stopcount
	})
}

func (s *Simulator) SetBinning(devidx, binning int) int {
	return s.setter("MH_SetBinning", devidx, binning >= 0 && binning < MaxBinSteps, func(d *simDevice) {
		d.binning = binning
	})
}

func (s *Simulator) SetOffset(devidx, offset int) int {
	return s.setter("MH_SetOffset", devidx, offset >= OffsetMin && offset <= OffsetMax, nil)
}

func (s *Simulator) SetHistoLen(devidx, lencode int) (int, int) {
	var actual int
	rc := s.setter("MH_SetHistoLen", devidx, lencode >= 0 && lencode <= MaxLenCode, func(d *simDevice) {
		d.histLen = HistLen(lencode)
		d.allocate(s.cfg.NumChannels)
		actual = d.histLen
	})
	return actual, rc
}

func (s *Simulator) ClearHistMem(devidx int) int {
	return s.setter("MH_ClearHistMem", devidx, true, func(d *simDevice) {
		for _, row := range d.hist {
			clear(row)
		}
		d.flags &^= FlagOverflow
	})
}

func (s *Simulator) StartMeas(devidx, tacq int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_StartMeas"); rc < 0 {
		return rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return rc
	}
	if tacq < AcqTMin || tacq > AcqTMax {
		return ErrorInvalidArgument
	}
	d.running = true
	d.polls = 0
	d.tacq = tacq
	d.flags |= FlagActive
	return 0
}

func (s *Simulator) CTCStatus(devidx int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_CTCStatus"); rc < 0 {
		return 0, rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return 0, rc
	}
	if !d.running {
		return 1, 0
	}
	d.polls++
	if d.polls >= s.cfg.PollsUntilDone {
		return 1, 0
	}
	return 0, 0
}

func (s *Simulator) StopMeas(devidx int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_StopMeas"); rc < 0 {
		return rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return rc
	}
	if d.running {
		s.accumulate(d)
	}
	d.running = false
	d.flags &^= FlagActive
	return 0
}

// accumulate добавляет в гистограммы счеты, набранные за время tacq.
func (s *Simulator) accumulate(d *simDevice) {
	perBin := s.cfg.CountRate * d.tacq / 1000 / d.histLen
	for ch, row := range d.hist {
		if !d.enabled[ch] {
			continue
		}
		for bin := range row {
			row[bin] += uint32(s.rng.Intn(2*perBin + 1))
			if d.stopOvfl && row[bin] >= d.stopCount {
				row[bin] = d.stopCount
				d.flags |= FlagOverflow
			}
			if s.cfg.OverflowLevel > 0 && row[bin] >= s.cfg.OverflowLevel {
				d.flags |= FlagOverflow
			}
		}
	}
}

func (s *Simulator) GetHistogram(devidx int, buf []uint32, channel int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetHistogram"); rc < 0 {
		return rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return rc
	}
	if !s.validChannel(channel) || len(buf) < d.histLen {
		return ErrorInvalidArgument
	}
	copy(buf, d.hist[channel])
	return 0
}

func (s *Simulator) GetAllHistograms(devidx int, buf []uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetAllHistograms"); rc < 0 {
		return rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return rc
	}
	if len(buf) < len(d.hist)*d.histLen {
		return ErrorInvalidArgument
	}
	for ch, row := range d.hist {
		copy(buf[ch*d.histLen:], row)
	}
	return 0
}

func (s *Simulator) GetResolution(devidx int) (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetResolution"); rc < 0 {
		return 0, rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return 0, rc
	}
	return s.cfg.BaseResolution * float64(int(1)<<d.binning), 0
}

func (s *Simulator) GetSyncRate(devidx int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetSyncRate"); rc < 0 {
		return 0, rc
	}
	if _, rc := s.device(devidx); rc < 0 {
		return 0, rc
	}
	return s.cfg.SyncRate, 0
}

func (s *Simulator) GetCountRate(devidx, channel int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetCountRate"); rc < 0 {
		return 0, rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return 0, rc
	}
	if !s.validChannel(channel) {
		return 0, ErrorInvalidArgument
	}
	if !d.enabled[channel] {
		return 0, 0
	}
	return s.cfg.CountRate, 0
}

func (s *Simulator) GetFlags(devidx int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetFlags"); rc < 0 {
		return 0, rc
	}
	d, rc := s.device(devidx)
	if rc < 0 {
		return 0, rc
	}
	return d.flags, 0
}

func (s *Simulator) GetWarnings(devidx int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetWarnings"); rc < 0 {
		return 0, rc
	}
	if _, rc := s.device(devidx); rc < 0 {
		return 0, rc
	}
	return s.cfg.Warnings, 0
}

var warningText = []struct {
	bit  int
	text string
}{
	{WarningSyncRateZero, "Sync rate is zero."},
	{WarningSyncRateVeryLow, "Sync rate is very low."},
	{WarningSyncRateTooHigh, "Sync rate is too high."},
	{WarningInptRateZero, "Input count rate is zero."},
	{WarningInptRateTooHigh, "Input count rate is too high."},
	{WarningInptRateRatio, "Input rate ratio is too high."},
	{WarningDividerGreaterOne, "Sync divider is greater than one."},
	{WarningTimeSpanTooSmall, "Histogram time span is too small."},
	{WarningOffsetUnnecessary, "Offset is unnecessary."},
	{WarningDividerTooSmall, "Sync divider is too small."},
	{WarningCountsDropped, "Counts were dropped."},
	{WarningUSB20SpeedOnly, "Device runs at USB 2.0 speed only."},
}

func (s *Simulator) GetWarningsText(devidx, warnings int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc := s.enter("MH_GetWarningsText"); rc < 0 {
		return "", rc
	}
	if _, rc := s.device(devidx); rc < 0 {
		return "", rc
	}
	var b strings.Builder
	for _, w := range warningText {
		if warnings&w.bit != 0 {
			b.WriteString(w.text)
			b.WriteString("\n")
		}
	}
	return b.String(), 0
}

func (s *Simulator) GetDebugInfo(devidx int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "MH_GetDebugInfo")
	if _, ok := s.devices[devidx]; !ok {
		return "", ErrorDeviceNotOpen
	}
	return "simulated device " + s.cfg.Devices[devidx] + ": no debug information", 0
}
