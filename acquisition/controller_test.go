package acquisition

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/iwtcode/multiharpAdapter/mhlib"
	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now  int64
	step int64
}

func (s *stepClock) Ticks() int64     { s.now += s.step; return s.now }
func (s *stepClock) Frequency() int64 { return int64(time.Second) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = 0
	opts.Clock = &stepClock{step: 1000}
	return opts
}

func testSettings() models.Settings {
	return models.Settings{
		SyncDivider: 1,
		Sync:        models.Trigger{Edge: 0, LevelMV: -50},
		Input: models.ChannelConfig{
			Trigger: models.Trigger{Edge: 0, LevelMV: -50},
			Enabled: true,
		},
		Bins: 1024,
	}
}

// newInitialized возвращает контроллер после Discover и Initialize.
func newInitialized(t *testing.T, cfg mhlib.SimConfig, opts Options) (*Controller, *mhlib.Simulator) {
	t.Helper()
	sim := mhlib.NewSimulator(cfg)
	c := New(sim, quietLogger(), opts)
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Discover()
	require.NoError(t, err)
	_, err = c.Initialize()
	require.NoError(t, err)
	return c, sim
}

func newConfigured(t *testing.T, cfg mhlib.SimConfig, opts Options, s models.Settings) (*Controller, *mhlib.Simulator) {
	t.Helper()
	c, sim := newInitialized(t, cfg, opts)
	_, err := c.Configure(s)
	require.NoError(t, err)
	return c, sim
}

// callsAfter возвращает вызовы, сделанные после первого вызова name.
func callsAfter(calls []string, name string) []string {
	for i, c := range calls {
		if c == name {
			return calls[i+1:]
		}
	}
	return nil
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestDiscoverNoDevice(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.Devices = nil
	sim := mhlib.NewSimulator(cfg)
	c := New(sim, quietLogger(), testOptions())

	slots, err := c.Discover()
	require.ErrorIs(t, err, ErrNoDevice)
	require.Len(t, slots, mhlib.MaxDevNum)
	for _, s := range slots {
		assert.False(t, s.Usable)
		assert.Equal(t, "no device", s.Status)
	}

	_, err = c.Initialize()
	assert.ErrorIs(t, err, ErrNoDevice)
	_, err = c.Configure(testSettings())
	assert.Error(t, err)

	for _, call := range sim.Calls() {
		assert.Equal(t, "MH_OpenDevice", call)
	}
	assert.Equal(t, -1, c.Device())
}

func TestDiscoverSlots(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.Devices = map[int]string{1: "1001", 4: "1004"}
	cfg.OpenErrors = map[int]int{2: mhlib.ErrorDeviceBusy}
	c := New(mhlib.NewSimulator(cfg), quietLogger(), testOptions())

	slots, err := c.Discover()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Device())
	assert.Equal(t, "1001", c.HardwareInfo().Serial)

	assert.True(t, slots[1].Usable)
	assert.Equal(t, "open ok", slots[1].Status)
	assert.Equal(t, "device is busy", slots[2].Status)
	assert.Equal(t, mhlib.ErrorDeviceBusy, slots[2].Code)
	assert.True(t, slots[4].Usable)
	assert.Equal(t, "no device", slots[0].Status)
}

func TestDiscoverRequestedIndex(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.Devices = map[int]string{0: "1000", 5: "1005"}

	opts := testOptions()
	opts.DeviceIndex = 5
	c := New(mhlib.NewSimulator(cfg), quietLogger(), opts)
	_, err := c.Discover()
	require.NoError(t, err)
	assert.Equal(t, 5, c.Device())

	opts.DeviceIndex = 3
	c = New(mhlib.NewSimulator(cfg), quietLogger(), opts)
	_, err = c.Discover()
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestInitializeFailureAttachesDebugInfo(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.Failures = map[string]int{"MH_Initialize": mhlib.ErrorFPGAConfFail}
	sim := mhlib.NewSimulator(cfg)
	c := New(sim, quietLogger(), testOptions())

	_, err := c.Discover()
	require.NoError(t, err)
	_, err = c.Initialize()
	require.Error(t, err)

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "MH_Initialize", apiErr.Call)
	assert.Equal(t, mhlib.ErrorFPGAConfFail, apiErr.Code)
	assert.Equal(t, "FPGA configuration failed", apiErr.Message)
	assert.Equal(t, "controller.go", apiErr.File)
	assert.NotZero(t, apiErr.Line)
	assert.NotEmpty(t, apiErr.DebugInfo)
	assert.Equal(t, "MH_GetDebugInfo", sim.Calls()[len(sim.Calls())-1])
}

func TestCheckLibraryVersionMismatchIsWarning(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.LibVersion = "3.1"
	c := New(mhlib.NewSimulator(cfg), quietLogger(), testOptions())

	version, err := c.CheckLibrary()
	require.NoError(t, err)
	assert.Equal(t, "3.1", version)
	assert.Equal(t, "3.1", c.HardwareInfo().LibraryVersion)
}

func expectedConfigSequence(deviceChannels, active int) []string {
	seq := []string{"MH_SetSyncDiv", "MH_SetSyncEdgeTrg", "MH_SetSyncChannelOffset"}
	for ch := 0; ch < deviceChannels; ch++ {
		if ch < active {
			seq = append(seq, "MH_SetInputEdgeTrg", "MH_SetInputChannelOffset", "MH_SetInputChannelEnable")
		} else {
			seq = append(seq, "MH_SetInputChannelEnable")
		}
	}
	return append(seq, "MH_SetHistoLen", "MH_SetBinning", "MH_SetOffset", "MH_GetResolution")
}

func TestConfigureOrder(t *testing.T) {
	s := testSettings()
	s.Channels = 2
	c, sim := newInitialized(t, mhlib.DefaultSimConfig(), testOptions())

	res, err := c.Configure(s)
	require.NoError(t, err)
	assert.Equal(t, expectedConfigSequence(4, 2), callsAfter(sim.Calls(), "MH_GetNumOfInputChannels"))

	assert.Equal(t, 4, res.DeviceChannels)
	assert.Equal(t, 2, res.ActiveChannels)
	assert.Equal(t, 0, res.LenCode)
	assert.Equal(t, 1024, res.HistLen)
	assert.Equal(t, 5.0, res.ResolutionPS)
	assert.Equal(t, StateConfigured, c.State())

	_, err = c.Configure(s)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfigureFailFast(t *testing.T) {
	full := expectedConfigSequence(4, 4)
	names := []string{
		"MH_SetSyncDiv", "MH_SetSyncEdgeTrg", "MH_SetSyncChannelOffset",
		"MH_SetInputEdgeTrg", "MH_SetInputChannelOffset", "MH_SetInputChannelEnable",
		"MH_SetHistoLen", "MH_SetBinning", "MH_SetOffset", "MH_GetResolution",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			cfg := mhlib.DefaultSimConfig()
			c, sim := newInitialized(t, cfg, testOptions())
			sim.SetFailure(name, mhlib.ErrorInvalidArgument)

			_, err := c.Configure(testSettings())
			require.Error(t, err)
			apiErr, ok := IsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, name, apiErr.Call)
			assert.Equal(t, "invalid argument", apiErr.Message)

			var want []string
			for _, call := range full {
				want = append(want, call)
				if call == name {
					break
				}
			}
			assert.Equal(t, want, callsAfter(sim.Calls(), "MH_GetNumOfInputChannels"))
			assert.Equal(t, StateIdle, c.State())

			_, err = c.RunCycle(context.Background(), 100)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestConfigurePerChannelInputs(t *testing.T) {
	s := testSettings()
	s.Inputs = []models.ChannelConfig{
		{Trigger: models.Trigger{Edge: 1, LevelMV: -100}, OffsetPS: 1000, Enabled: true},
		{Trigger: models.Trigger{Edge: 0, LevelMV: -60}, OffsetPS: -2500, Enabled: false},
	}
	c, sim := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), s)

	inputs, ok := sim.Inputs(c.Device())
	require.True(t, ok)
	require.Len(t, inputs, 4)
	assert.Equal(t, mhlib.SimInput{Edge: 1, LevelMV: -100, OffsetPS: 1000, Enabled: true}, inputs[0])
	assert.Equal(t, mhlib.SimInput{Edge: 0, LevelMV: -60, OffsetPS: -2500, Enabled: false}, inputs[1])
	for _, in := range inputs[2:] {
		assert.Equal(t, mhlib.SimInput{Edge: 0, LevelMV: -50, OffsetPS: 0, Enabled: true}, in)
	}
}

func TestConfigureRejectsTooManyInputs(t *testing.T) {
	c, sim := newInitialized(t, mhlib.DefaultSimConfig(), testOptions())
	s := testSettings()
	s.Inputs = make([]models.ChannelConfig, 5)

	_, err := c.Configure(s)
	require.Error(t, err)
	assert.Zero(t, count(sim.Calls(), "MH_SetSyncDiv"))
}

func TestConfigureValidatesBeforeHardware(t *testing.T) {
	c, sim := newInitialized(t, mhlib.DefaultSimConfig(), testOptions())
	before := len(sim.Calls())

	s := testSettings()
	s.Bins = 3000
	_, err := c.Configure(s)
	assert.Error(t, err)

	s = testSettings()
	s.Channels = 5
	_, err = c.Configure(s)
	assert.Error(t, err)

	assert.Len(t, sim.Calls(), before)
}

func TestSettle(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.Warnings = mhlib.WarningSyncRateVeryLow
	opts := testOptions()
	opts.StopOverflow = true
	c, sim := newConfigured(t, cfg, opts, testSettings())

	rates, err := c.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.SyncRate, rates.SyncRate)
	require.Len(t, rates.CountRates, 4)
	assert.Equal(t, 4*cfg.CountRate, rates.Total())

	after := callsAfter(sim.Calls(), "MH_GetResolution")
	assert.Equal(t, []string{
		"MH_GetSyncRate",
		"MH_GetCountRate", "MH_GetCountRate", "MH_GetCountRate", "MH_GetCountRate",
		"MH_GetWarnings", "MH_GetWarningsText", "MH_SetStopOverflow",
	}, after)
}

func TestSettleCancelled(t *testing.T) {
	opts := testOptions()
	opts.SettleDelay = time.Hour
	c, _ := newConfigured(t, mhlib.DefaultSimConfig(), opts, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Settle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCycleAllChannels(t *testing.T) {
	c, sim := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), testSettings())

	rec, err := c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, rec.Matrix)
	assert.Equal(t, 4*1024, rec.Matrix.Len())
	assert.Equal(t, 0, rec.Index)
	assert.False(t, rec.Overflow)
	assert.Less(t, rec.ArmTicks, rec.StartTicks)
	assert.Less(t, rec.StartTicks, rec.EndTicks)
	assert.Equal(t, StateCleared, c.State())

	after := callsAfter(sim.Calls(), "MH_GetResolution")
	assert.Equal(t, []string{
		"MH_StartMeas", "MH_CTCStatus", "MH_CTCStatus", "MH_CTCStatus",
		"MH_StopMeas", "MH_GetAllHistograms", "MH_GetFlags", "MH_ClearHistMem",
	}, after)

	rec, err = c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Index)
}

func TestRunCycleRecordsKeepTheirCounts(t *testing.T) {
	c, _ := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), testSettings())

	first, err := c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	saved := append([]uint32(nil), first.Matrix.Data()...)

	second, err := c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.NotSame(t, first.Matrix, second.Matrix)
	assert.NotSame(t, first.Matrix, c.Matrix())
	assert.Equal(t, saved, first.Matrix.Data())
}

func TestRunCyclePartialChannels(t *testing.T) {
	s := testSettings()
	s.Channels = 2
	s.Bins = 2048
	c, sim := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), s)

	rec, err := c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Matrix.Channels())
	assert.Equal(t, 2048, rec.Matrix.Bins())
	assert.Equal(t, 2*2048, len(rec.Matrix.Data()))
	assert.Equal(t, 2, count(sim.Calls(), "MH_GetHistogram"))
	assert.Zero(t, count(sim.Calls(), "MH_GetAllHistograms"))
	assert.NotZero(t, rec.Matrix.Total())
}

func TestRunCycleOverflowIsNotFatal(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.OverflowLevel = 1
	c, _ := newConfigured(t, cfg, testOptions(), testSettings())

	rec, err := c.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, rec.Overflow)
	assert.NotZero(t, rec.Flags&mhlib.FlagOverflow)

	_, err = c.RunCycle(context.Background(), 100)
	assert.NoError(t, err)
}

func TestRunCycleAPIFailureStopsController(t *testing.T) {
	c, sim := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), testSettings())
	sim.SetFailure("MH_GetAllHistograms", mhlib.ErrorUSBBulkrdFail)

	_, err := c.RunCycle(context.Background(), 100)
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "MH_GetAllHistograms", apiErr.Call)
	assert.Equal(t, "MH_GetAllHistograms", sim.Calls()[len(sim.Calls())-1])

	sim.SetFailure("MH_GetAllHistograms", 0)
	_, err = c.RunCycle(context.Background(), 100)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRunCycleRequiresConfigure(t *testing.T) {
	c, _ := newInitialized(t, mhlib.DefaultSimConfig(), testOptions())
	_, err := c.RunCycle(context.Background(), 100)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPollMaxWait(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.PollsUntilDone = 1 << 30
	opts := testOptions()
	opts.PollInterval = time.Millisecond
	opts.PollMaxWait = 20 * time.Millisecond
	c, sim := newConfigured(t, cfg, opts, testSettings())

	_, err := c.RunCycle(context.Background(), 100)
	require.ErrorIs(t, err, ErrPollTimeout)

	calls := sim.Calls()
	assert.Equal(t, "MH_StopMeas", calls[len(calls)-1])
	assert.Greater(t, count(calls, "MH_CTCStatus"), 1)

	_, err = c.RunCycle(context.Background(), 100)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPollCancelledTightLoop(t *testing.T) {
	cfg := mhlib.DefaultSimConfig()
	cfg.PollsUntilDone = 1 << 30
	c, _ := newConfigured(t, cfg, testOptions(), testSettings())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.RunCycle(ctx, 100)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCloseIsIdempotent(t *testing.T) {
	c, sim := newConfigured(t, mhlib.DefaultSimConfig(), testOptions(), testSettings())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, mhlib.MaxDevNum, count(sim.Calls(), "MH_CloseDevice"))
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, -1, c.Device())

	_, err := c.RunCycle(context.Background(), 100)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.ClearHistMem(), ErrInvalidState)
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{Call: "MH_SetBinning", Code: -17, Message: "invalid argument", File: "controller.go", Line: 42}
	assert.Equal(t, "MH_SetBinning at controller.go:42 returned error -17 (invalid argument)", err.Error())

	wrapped := errors.Join(errors.New("context"), err)
	got, ok := IsAPIError(wrapped)
	require.True(t, ok)
	assert.Same(t, err, got)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateConfigured))
	assert.True(t, canTransition(StateCleared, StateArmed))
	assert.True(t, canTransition(StatePolling, StateClosed))
	assert.False(t, canTransition(StateIdle, StateArmed))
	assert.False(t, canTransition(StateFetched, StateArmed))
	assert.False(t, canTransition(StateClosed, StateClosed))
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "state(42)", State(42).String())
}
