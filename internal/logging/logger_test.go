package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "warn", Output: &buf})
	defer l.Close()

	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	l.Info("hidden")
	l.Component("acquisition").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=acquisition")

	l2 := NewLogger(Config{Level: "bogus", Output: &buf})
	defer l2.Close()
	assert.Equal(t, logrus.InfoLevel, l2.GetLevel())
}

func TestNewLoggerOff(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "off", Output: &buf})
	defer l.Close()
	l.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestLoggerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", LogsDir: dir, Output: &buf})
	l.Info("to file")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2020-01-01.log")
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(keep, past, past))

	l := NewLogger(Config{Level: "info", LogsDir: dir, SavingDays: 7, Output: &bytes.Buffer{}})
	defer l.Close()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
	assert.Zero(t, l.cleanOldLogs(time.Now()))
}
