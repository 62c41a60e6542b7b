package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Level      string    // trace, debug, info, warn, error; off или none отключают вывод
	LogsDir    string    // Директория для логов, пустая строка отключает запись в файл
	SavingDays uint      // Сколько дней хранить логи
	Output     io.Writer // Консольный вывод, по умолчанию os.Stdout
}

// Logger logrus с дублированием в файл текущего дня и очисткой старых файлов.
type Logger struct {
	*logrus.Logger
	config    Config
	file      *os.File
	stop      chan struct{}
	closeOnce sync.Once
}

func NewLogger(cfg Config) *Logger {
	l := &Logger{
		Logger: logrus.New(),
		config: cfg,
		stop:   make(chan struct{}),
	}

	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := strings.ToLower(cfg.Level)
	if level == "off" || level == "none" {
		l.SetOutput(io.Discard)
		return l
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0o755); err == nil {
			logFile := filepath.Join(cfg.LogsDir, time.Now().Format("2006-01-02")+".log")
			if file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				l.file = file
				output = io.MultiWriter(output, file)
			}
		}
	}
	l.SetOutput(output)

	if cfg.LogsDir != "" && cfg.SavingDays > 0 {
		l.cleanOldLogs(time.Now())
		go l.cleanLoop()
	}

	return l
}

// Component возвращает запись лога с полем component.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

func (l *Logger) cleanLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.cleanOldLogs(now)
		}
	}
}

// cleanOldLogs удаляет файлы логов старше SavingDays и возвращает их число.
func (l *Logger) cleanOldLogs(now time.Time) int {
	files, err := os.ReadDir(l.config.LogsDir)
	if err != nil {
		l.WithError(err).Error("Failed to read logs directory")
		return 0
	}

	removed := 0
	cutoff := now.AddDate(0, 0, -int(l.config.SavingDays))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".log") {
			continue
		}
		info, err := file.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.config.LogsDir, file.Name())); err != nil {
			l.WithError(err).WithField("file", file.Name()).Error("Failed to delete old log file")
			continue
		}
		removed++
	}
	return removed
}

func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
