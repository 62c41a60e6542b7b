package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iwtcode/multiharpAdapter/mhlib"
	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
)

// Options параметры работы контроллера, не относящиеся к настройкам прибора.
type Options struct {
	// DeviceIndex индекс используемого устройства, -1 означает первое найденное.
	DeviceIndex int
	// PollInterval пауза между опросами CTCStatus, 0 означает опрос без пауз.
	PollInterval time.Duration
	// PollMaxWait предельное время ожидания завершения, 0 означает без ограничения.
	PollMaxWait time.Duration
	// SettleDelay ожидание после конфигурации до чтения скоростей счета.
	SettleDelay time.Duration
	// StopOverflow останавливать ли измерение при достижении StopCount.
	StopOverflow bool
	StopCount    uint32

	Clock   Clock
	Metrics *Metrics
}

// DefaultOptions значения по умолчанию.
func DefaultOptions() Options {
	return Options{
		DeviceIndex: -1,
		SettleDelay: 150 * time.Millisecond,
		StopCount:   10000,
	}
}

// Controller ведет прибор через конфигурацию и циклы измерения. Хендл
// прибора (индекс устройства) принадлежит контроллеру до Close.
type Controller struct {
	lib     mhlib.Library
	log     logrus.FieldLogger
	opts    Options
	clock   Clock
	metrics *Metrics

	mu        sync.Mutex
	state     State
	failed    error
	dev       int
	opened    []int
	hw        models.HardwareInfo
	result    *models.ConfigResult
	matrix    *models.Matrix
	cycles    int
	closeOnce sync.Once
}

// New создает контроллер. Пока не вызван Discover, прибор не выбран.
func New(lib mhlib.Library, logger logrus.FieldLogger, opts Options) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = NewMonotonicClock()
	}
	if opts.StopCount == 0 {
		opts.StopCount = mhlib.StopCntMin
	}
	return &Controller{
		lib:     lib,
		log:     logger,
		opts:    opts,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		state:   StateIdle,
		dev:     -1,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Device индекс выбранного устройства или -1.
func (c *Controller) Device() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev
}

func (c *Controller) HardwareInfo() models.HardwareInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hw
}

// Matrix текущая матрица счетов. Перезаписывается каждым циклом.
func (c *Controller) Matrix() *models.Matrix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matrix
}

// CheckLibrary читает версию библиотеки и предупреждает о несовпадении.
func (c *Controller) CheckLibrary() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version, rc := c.lib.GetLibraryVersion()
	if err := c.call("MH_GetLibraryVersion", rc); err != nil {
		return "", err
	}
	c.hw.LibraryVersion = version
	c.log.Infof("Library version is %s", version)
	if version != mhlib.LibVersion {
		c.log.Warnf("The application was built for version %s", mhlib.LibVersion)
	}
	return version, nil
}

// Discover пробует открыть каждый индекс устройства. Неудача для отдельного
// индекса ожидаема и только логируется. Если ни одно устройство не открылось
// (или запрошенный индекс недоступен), возвращается ErrNoDevice.
func (c *Controller) Discover() ([]models.DeviceSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return nil, fmt.Errorf("%w: discover in state %s", ErrInvalidState, c.state)
	}

	slots := make([]models.DeviceSlot, 0, mhlib.MaxDevNum)
	c.log.Info("Searching for MultiHarp devices...")
	for i := 0; i < mhlib.MaxDevNum; i++ {
		serial, rc := c.lib.OpenDevice(i)
		slot := models.DeviceSlot{Index: i, Serial: serial, Code: rc}
		switch {
		case rc == 0:
			slot.Status = "open ok"
			slot.Usable = true
			c.opened = append(c.opened, i)
		case rc == mhlib.ErrorDeviceOpenFail:
			slot.Status = "no device"
		default:
			slot.Status = c.errorString(rc)
		}
		c.log.WithFields(logrus.Fields{"devidx": i, "serial": serial}).Info(slot.Status)
		slots = append(slots, slot)
	}

	c.metrics.devicesFound(len(c.opened))
	if len(c.opened) == 0 {
		return slots, ErrNoDevice
	}

	if c.opts.DeviceIndex < 0 {
		c.dev = c.opened[0]
	} else {
		for _, idx := range c.opened {
			if idx == c.opts.DeviceIndex {
				c.dev = idx
			}
		}
		if c.dev < 0 {
			return slots, fmt.Errorf("%w: device %d is not usable", ErrNoDevice, c.opts.DeviceIndex)
		}
	}
	c.hw.DeviceIndex = c.dev
	c.hw.Serial = slots[c.dev].Serial
	c.log.Infof("Using device #%d", c.dev)
	return slots, nil
}

// Initialize переводит выбранное устройство в режим гистограмм. При отказе
// к ошибке прикладывается отладочная информация MH_GetDebugInfo.
func (c *Controller) Initialize() (*models.HardwareInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev < 0 {
		return nil, ErrNoDevice
	}
	if c.state != StateIdle {
		return nil, fmt.Errorf("%w: initialize in state %s", ErrInvalidState, c.state)
	}

	c.log.Info("Initializing the device...")
	if rc := c.lib.Initialize(c.dev, mhlib.ModeHist, mhlib.RefSourceInternal); rc < 0 {
		apiErr := c.fail("MH_Initialize", rc, 1)
		if info, drc := c.lib.GetDebugInfo(c.dev); drc >= 0 {
			apiErr.DebugInfo = info
			c.log.Errorf("DEBUGINFO:\n%s", info)
		}
		return nil, apiErr
	}

	model, partno, version, rc := c.lib.GetHardwareInfo(c.dev)
	if err := c.call("MH_GetHardwareInfo", rc); err != nil {
		return nil, err
	}
	c.hw.Model, c.hw.PartNo, c.hw.Version = model, partno, version
	c.log.Infof("Found Model %s Part no %s Version %s", model, partno, version)

	n, rc := c.lib.GetNumOfInputChannels(c.dev)
	if err := c.call("MH_GetNumOfInputChannels", rc); err != nil {
		return nil, err
	}
	c.hw.NumChannels = n
	c.log.Infof("Device has %d input channels", n)

	hw := c.hw
	return &hw, nil
}

// validate проверяет настройки до первого обращения к прибору.
func (c *Controller) validate(s models.Settings) (channels, lencode int, err error) {
	channels = s.Channels
	if channels == 0 {
		channels = c.hw.NumChannels
	}
	if channels < 1 || channels > c.hw.NumChannels {
		return 0, 0, fmt.Errorf("channels must be in 1..%d, got %d", c.hw.NumChannels, s.Channels)
	}
	if len(s.Inputs) > c.hw.NumChannels {
		return 0, 0, fmt.Errorf("%d input settings for a device with %d channels", len(s.Inputs), c.hw.NumChannels)
	}
	lencode, ok := mhlib.LenCode(s.Bins)
	if !ok {
		return 0, 0, fmt.Errorf("bins must be a power of two in %d..%d, got %d", mhlib.MinHistLen, mhlib.MaxHistLen, s.Bins)
	}
	return channels, lencode, nil
}

// Configure применяет настройки в фиксированном порядке и прекращает работу
// на первой отвергнутой настройке. Отката уже примененных настроек нет.
// Каждый канал получает s.InputFor(ch), каналы сверх Settings.Channels
// отключаются.
func (c *Controller) Configure(s models.Settings) (*models.ConfigResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hw.NumChannels == 0 {
		return nil, fmt.Errorf("%w: configure before initialize", ErrInvalidState)
	}
	channels, lencode, err := c.validate(s)
	if err != nil {
		return nil, err
	}
	if c.state != StateIdle {
		return nil, fmt.Errorf("%w: configure in state %s", ErrInvalidState, c.state)
	}

	dev := c.dev
	if err := c.call("MH_SetSyncDiv", c.lib.SetSyncDiv(dev, s.SyncDivider)); err != nil {
		return nil, err
	}
	if err := c.call("MH_SetSyncEdgeTrg", c.lib.SetSyncEdgeTrg(dev, s.Sync.LevelMV, s.Sync.Edge)); err != nil {
		return nil, err
	}
	if err := c.call("MH_SetSyncChannelOffset", c.lib.SetSyncChannelOffset(dev, s.SyncOffsetPS)); err != nil {
		return nil, err
	}

	for ch := 0; ch < c.hw.NumChannels; ch++ {
		if ch >= channels {
			if err := c.call("MH_SetInputChannelEnable", c.lib.SetInputChannelEnable(dev, ch, 0)); err != nil {
				return nil, err
			}
			continue
		}
		in := s.InputFor(ch)
		if err := c.call("MH_SetInputEdgeTrg", c.lib.SetInputEdgeTrg(dev, ch, in.LevelMV, in.Edge)); err != nil {
			return nil, err
		}
		if err := c.call("MH_SetInputChannelOffset", c.lib.SetInputChannelOffset(dev, ch, in.OffsetPS)); err != nil {
			return nil, err
		}
		if err := c.call("MH_SetInputChannelEnable", c.lib.SetInputChannelEnable(dev, ch, boolToInt(in.Enabled))); err != nil {
			return nil, err
		}
	}

	histLen, rc := c.lib.SetHistoLen(dev, lencode)
	if err := c.call("MH_SetHistoLen", rc); err != nil {
		return nil, err
	}
	c.log.Infof("Histogram length is %d", histLen)
	if err := c.call("MH_SetBinning", c.lib.SetBinning(dev, s.Binning)); err != nil {
		return nil, err
	}
	if err := c.call("MH_SetOffset", c.lib.SetOffset(dev, s.OffsetNS)); err != nil {
		return nil, err
	}
	resolution, rc := c.lib.GetResolution(dev)
	if err := c.call("MH_GetResolution", rc); err != nil {
		return nil, err
	}
	c.log.Infof("Resolution is %.0fps", resolution)

	matrix, err := models.NewMatrix(channels, histLen)
	if err != nil {
		return nil, fmt.Errorf("allocate histogram matrix: %w", err)
	}
	c.matrix = matrix
	c.result = &models.ConfigResult{
		DeviceChannels: c.hw.NumChannels,
		ActiveChannels: channels,
		LenCode:        lencode,
		HistLen:        histLen,
		ResolutionPS:   resolution,
	}
	if err := c.transition(StateConfigured); err != nil {
		return nil, err
	}
	result := *c.result
	return &result, nil
}

// Settle выжидает стабилизации счетчиков скорости, читает скорости и
// предупреждения и задает политику остановки по переполнению.
func (c *Controller) Settle(ctx context.Context) (*models.Rates, error) {
	if err := sleepCtx(ctx, c.opts.SettleDelay); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConfigured {
		return nil, fmt.Errorf("%w: settle in state %s", ErrInvalidState, c.state)
	}
	rates, err := c.readRates()
	if err != nil {
		return nil, err
	}

	warnings, rc := c.lib.GetWarnings(c.dev)
	if err := c.call("MH_GetWarnings", rc); err != nil {
		return nil, err
	}
	if warnings != 0 {
		text, rc := c.lib.GetWarningsText(c.dev, warnings)
		if err := c.call("MH_GetWarningsText", rc); err != nil {
			return nil, err
		}
		c.log.WithField("warnings", fmt.Sprintf("0x%04x", warnings)).Warn(text)
	}

	stop := boolToInt(c.opts.StopOverflow)
	if err := c.call("MH_SetStopOverflow", c.lib.SetStopOverflow(c.dev, stop, c.opts.StopCount)); err != nil {
		return nil, err
	}
	return rates, nil
}

// ReadRates читает скорость синхронизации и скорости счета активных каналов.
func (c *Controller) ReadRates() (*models.Rates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil || c.state == StateClosed {
		return nil, fmt.Errorf("%w: read rates in state %s", ErrInvalidState, c.state)
	}
	return c.readRates()
}

func (c *Controller) readRates() (*models.Rates, error) {
	syncRate, rc := c.lib.GetSyncRate(c.dev)
	if err := c.call("MH_GetSyncRate", rc); err != nil {
		return nil, err
	}
	c.log.Infof("Syncrate=%d/s", syncRate)

	rates := &models.Rates{SyncRate: syncRate, CountRates: make([]int, c.result.ActiveChannels)}
	for ch := range rates.CountRates {
		rate, rc := c.lib.GetCountRate(c.dev, ch)
		if err := c.call("MH_GetCountRate", rc); err != nil {
			return nil, err
		}
		rates.CountRates[ch] = rate
		c.log.Infof("Countrate[%d]=%d/s", ch, rate)
	}
	c.metrics.observeRates(rates)
	return rates, nil
}

// ClearHistMem очищает память гистограмм прибора.
func (c *Controller) ClearHistMem() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConfigured && c.state != StateCleared {
		return fmt.Errorf("%w: clear in state %s", ErrInvalidState, c.state)
	}
	return c.call("MH_ClearHistMem", c.lib.ClearHistMem(c.dev))
}

// RunCycle выполняет один цикл: запуск, ожидание завершения, остановка,
// чтение гистограмм, флаги, очистка. Запись получает собственную копию
// матрицы.
func (c *Controller) RunCycle(ctx context.Context, tacqMs int) (*models.CycleRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transition(StateArmed); err != nil {
		return nil, err
	}
	rec := &models.CycleRecord{Index: c.cycles, TickFrequency: c.clock.Frequency()}
	rec.ArmTicks = c.clock.Ticks()
	if err := c.call("MH_StartMeas", c.lib.StartMeas(c.dev, tacqMs)); err != nil {
		return nil, err
	}

	if err := c.transition(StatePolling); err != nil {
		return nil, err
	}
	polls, err := c.waitForCompletion(ctx)
	c.metrics.polled(polls)
	if err != nil {
		if _, ok := IsAPIError(err); !ok {
			// ожидание прервано, измерение все равно нужно остановить
			c.lib.StopMeas(c.dev)
			c.failed = err
		}
		return nil, err
	}

	if err := c.transition(StateStopped); err != nil {
		return nil, err
	}
	if err := c.call("MH_StopMeas", c.lib.StopMeas(c.dev)); err != nil {
		return nil, err
	}

	rec.StartTicks = c.clock.Ticks()
	if err := c.fetch(); err != nil {
		return nil, err
	}
	rec.EndTicks = c.clock.Ticks()
	if err := c.transition(StateFetched); err != nil {
		return nil, err
	}

	flags, rc := c.lib.GetFlags(c.dev)
	if err := c.call("MH_GetFlags", rc); err != nil {
		return nil, err
	}
	rec.Flags = flags
	rec.Overflow = flags&mhlib.FlagOverflow != 0
	if rec.Overflow {
		c.log.WithField("cycle", rec.Index).Warn("Overflow")
	}

	if err := c.call("MH_ClearHistMem", c.lib.ClearHistMem(c.dev)); err != nil {
		return nil, err
	}
	if err := c.transition(StateCleared); err != nil {
		return nil, err
	}

	rec.Matrix = c.matrix.Clone()
	c.cycles++
	c.metrics.cycleDone(rec)
	return rec, nil
}

// fetch читает гистограммы в матрицу. Когда используются все каналы
// прибора, достаточно одного MH_GetAllHistograms, иначе каналы читаются
// по одному.
func (c *Controller) fetch() error {
	if c.matrix.Channels() == c.hw.NumChannels {
		return c.call("MH_GetAllHistograms", c.lib.GetAllHistograms(c.dev, c.matrix.Data()))
	}
	for ch := 0; ch < c.matrix.Channels(); ch++ {
		row, err := c.matrix.Row(ch)
		if err != nil {
			return err
		}
		if err := c.call("MH_GetHistogram", c.lib.GetHistogram(c.dev, row, ch)); err != nil {
			return err
		}
	}
	return nil
}

// Close закрывает все индексы устройств. Повторные вызовы ничего не делают.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := 0; i < mhlib.MaxDevNum; i++ {
			c.lib.CloseDevice(i)
		}
		if c.state != StateClosed {
			c.log.Debugf("state %s -> %s", c.state, StateClosed)
		}
		c.state = StateClosed
		c.dev = -1
		c.opened = nil
	})
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
