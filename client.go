package multiharp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/iwtcode/multiharpAdapter/acquisition"
	"github.com/iwtcode/multiharpAdapter/internal/logging"
	"github.com/iwtcode/multiharpAdapter/mhlib"
	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/iwtcode/multiharpAdapter/recorder"
	"github.com/sirupsen/logrus"
)

// Client является основной точкой входа для запуска измерения в режиме
// гистограмм. Один Client выполняет один прогон.
type Client struct {
	id      string
	lib     mhlib.Library
	config  *Config
	logger  *logging.Logger
	metrics *acquisition.Metrics
}

// Summary итог прогона.
type Summary struct {
	RunID    string               `json:"run_id"`
	Slots    []models.DeviceSlot  `json:"slots"`
	Hardware *models.HardwareInfo `json:"hardware,omitempty"`
	Config   *models.ConfigResult `json:"config,omitempty"`
	Rates    *models.Rates        `json:"rates,omitempty"`
	Stats    acquisition.LoopStats `json:"stats"`
}

// New создает клиента. Если lib равен nil, используется библиотека,
// выбранная при сборке (mhlib.Default).
func New(cfg *Config, lib mhlib.Library) (*Client, error) {
	if cfg == nil {
		cfg = Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if lib == nil {
		lib = mhlib.Default()
	}

	logger := logging.NewLogger(logging.Config{
		Level:      cfg.Log.Level,
		LogsDir:    cfg.Log.Dir,
		SavingDays: cfg.Log.SavingDays,
	})

	c := &Client{
		id:      uuid.NewString(),
		lib:     lib,
		config:  cfg,
		logger:  logger,
		metrics: acquisition.NewMetrics(),
	}
	if mhlib.Simulated {
		logger.Warn("running against the simulated MHLib")
	}
	return c, nil
}

// RunID идентификатор прогона, попадает в каждую запись лога.
func (c *Client) RunID() string { return c.id }

// GetLogger возвращает используемый логгер.
func (c *Client) GetLogger() *logrus.Logger {
	return c.logger.Logger
}

func (c *Client) Metrics() *acquisition.Metrics { return c.metrics }

// Close закрывает файл лога.
func (c *Client) Close() error {
	return c.logger.Close()
}

// openRecorders открывает выходные файлы до первого обращения к прибору.
func (c *Client) openRecorders() (recorder.Recorder, error) {
	out := c.config.Output
	log := c.logger.Component("recorder").WithField("run_id", c.id)

	var recs recorder.Multi
	if out.Format == FormatStream || out.Format == FormatBoth {
		s, err := recorder.NewStreamRecorder(out.DataFile, out.TimingFile, log)
		if err != nil {
			return nil, err
		}
		recs = append(recs, s)
	}
	if out.Format == FormatSnapshot || out.Format == FormatBoth {
		s, err := recorder.NewSnapshotRecorder(out.SnapshotFile, log)
		if err != nil {
			return nil, errors.Join(err, recs.Close())
		}
		recs = append(recs, s)
	}
	if len(recs) == 1 {
		return recs[0], nil
	}
	return recs, nil
}

// Run выполняет прогон: открытие файлов, поиск и инициализация прибора,
// конфигурация, ожидание стабилизации и цикл измерений под управлением op.
// Прибор и файлы закрываются при любом исходе.
func (c *Client) Run(ctx context.Context, op acquisition.Operator) (sum *Summary, err error) {
	sum = &Summary{RunID: c.id}
	log := c.logger.WithField("run_id", c.id)

	rec, err := c.openRecorders()
	if err != nil {
		return sum, err
	}
	defer func() {
		err = errors.Join(err, rec.Close())
	}()

	opts := c.config.ControllerOptions()
	opts.Metrics = c.metrics
	ctrl := acquisition.New(c.lib, log.WithField("component", "controller"), opts)
	defer func() {
		err = errors.Join(err, ctrl.Close())
		if path := c.config.Metrics.TextfilePath; path != "" {
			if werr := c.metrics.WriteTextfile(path); werr != nil {
				log.WithError(werr).Warn("failed to write metrics textfile")
			}
		}
	}()

	if _, err = ctrl.CheckLibrary(); err != nil {
		return sum, err
	}
	if sum.Slots, err = ctrl.Discover(); err != nil {
		return sum, err
	}
	if sum.Hardware, err = ctrl.Initialize(); err != nil {
		return sum, err
	}
	if sum.Config, err = ctrl.Configure(c.config.Settings()); err != nil {
		return sum, err
	}
	if sum.Rates, err = ctrl.Settle(ctx); err != nil {
		return sum, err
	}

	sum.Stats, err = ctrl.InteractiveLoop(ctx, c.config.LoopOptions(), op, rec)
	if err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"rounds":    sum.Stats.Rounds,
		"cycles":    sum.Stats.Cycles,
		"overflows": sum.Stats.Overflows,
	}).Info("measurement finished")
	return sum, nil
}
