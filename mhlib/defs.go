// Package mhlib описывает библиотеку MHLib прибора MultiHarp со стороны Go:
// константы, коды ошибок и контракт вызовов, которому следуют нативная
// привязка и симулятор.
//
// Каждый вызов возвращает знаковый код: отрицательное значение означает
// ошибку, ноль или положительное значение означает успех.
package mhlib

// LibVersion версия библиотеки, под которую собран адаптер.
const LibVersion = "4.0"

const (
	// MaxDevNum количество индексов устройств, доступных библиотеке.
	MaxDevNum = 8

	// ModeHist режим гистограммирования для Initialize.
	ModeHist = 0
	ModeT2   = 2
	ModeT3   = 3

	// RefSourceInternal внутренний источник опорной частоты.
	RefSourceInternal = 0

	MaxLenCode  = 6
	MaxInpChan  = 64
	MaxBinSteps = 24
	MaxHistLen  = 65536
	MinHistLen  = 1024

	TrgLvlMin = -1200 // mV
	TrgLvlMax = 1200  // mV

	ChanOffsMin = -99999 // ps
	ChanOffsMax = 99999  // ps

	OffsetMin = 0
	OffsetMax = 100000000 // ns

	AcqTMin = 1         // ms
	AcqTMax = 360000000 // ms

	SyncDivMin = 1
	SyncDivMax = 16

	StopCntMin = 1
	StopCntMax = 4294967295

	// ErrorStringLen размер буфера MH_GetErrorString.
	ErrorStringLen = 40
	// DebugInfoLen размер буфера MH_GetDebugInfo и MH_GetWarningsText.
	DebugInfoLen = 16384
)

// Биты, возвращаемые GetFlags.
const (
	FlagOverflow    = 0x0001
	FlagFifoFull    = 0x0002
	FlagSyncLost    = 0x0004
	FlagRefLost     = 0x0008
	FlagSysError    = 0x0010
	FlagActive      = 0x0020
	FlagCntsDropped = 0x0040
	FlagSoftError   = 0x0080
)

// Биты, возвращаемые GetWarnings.
const (
	WarningSyncRateZero      = 0x0001
	WarningSyncRateVeryLow   = 0x0002
	WarningSyncRateTooHigh   = 0x0004
	WarningInptRateZero      = 0x0010
	WarningInptRateTooHigh   = 0x0040
	WarningInptRateRatio     = 0x0100
	WarningDividerGreaterOne = 0x0200
	WarningTimeSpanTooSmall  = 0x0400
	WarningOffsetUnnecessary = 0x0800
	WarningDividerTooSmall   = 0x1000
	WarningCountsDropped     = 0x2000
	WarningUSB20SpeedOnly    = 0x4000
)

// LenCode возвращает код длины гистограммы для числа бинов:
// bins = 1024 * 2^code. ok == false, если bins не является степенью двойки
// в диапазоне MinHistLen..MaxHistLen.
func LenCode(bins int) (code int, ok bool) {
	if bins < MinHistLen || bins > MaxHistLen || bins&(bins-1) != 0 {
		return 0, false
	}
	for x := bins / MinHistLen; x > 1; x >>= 1 {
		code++
	}
	return code, true
}

// HistLen обратная функция к LenCode.
func HistLen(code int) int {
	if code < 0 || code > MaxLenCode {
		return 0
	}
	return MinHistLen << code
}
