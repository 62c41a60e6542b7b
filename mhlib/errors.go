package mhlib

import "fmt"

// Коды ошибок MHLib. Таблица неполная: остальные коды нативная библиотека
// расшифровывает через GetErrorString.
const (
	ErrorNone                   = 0
	ErrorDeviceOpenFail         = -1
	ErrorDeviceBusy             = -2
	ErrorDeviceHeventFail       = -3
	ErrorDeviceCallbsetFail     = -4
	ErrorDeviceBarmapFail       = -5
	ErrorDeviceCloseFail        = -6
	ErrorDeviceResetFail        = -7
	ErrorDeviceGetversionFail   = -8
	ErrorDeviceVersionMismatch  = -9
	ErrorDeviceNotOpen          = -10
	ErrorInstanceRunning        = -16
	ErrorInvalidArgument        = -17
	ErrorInvalidMode            = -18
	ErrorInvalidOption          = -19
	ErrorInvalidMemory          = -20
	ErrorInvalidRdata           = -21
	ErrorNotInitialized         = -22
	ErrorNotCalibrated          = -23
	ErrorDMAFail                = -24
	ErrorXtdeviceFail           = -25
	ErrorFPGAConfFail           = -26
	ErrorIfConfFail             = -27
	ErrorFifoResetFail          = -28
	ErrorThreadStateFail        = -29
	ErrorThreadLockFail         = -30
	ErrorUSBGetDriverVerFail    = -32
	ErrorUSBDriverVerMismatch   = -33
	ErrorUSBGetIfInfoFail       = -34
	ErrorUSBHispeedFail         = -35
	ErrorUSBVcmdFail            = -36
	ErrorUSBBulkrdFail          = -37
	ErrorUSBResetFail           = -38
	ErrorLaneupTimeout          = -40
	ErrorDoneallTimeout         = -41
	ErrorMBAckTimeout           = -42
	ErrorMActiveTimeout         = -43
	ErrorMemclearFail           = -44
	ErrorMemtestFail            = -45
	ErrorCalibFail              = -46
	ErrorRefselFail             = -47
	ErrorStatusFail             = -48
	ErrorModnumFail             = -49
	ErrorDigmuxFail             = -50
	ErrorModmuxFail             = -51
	ErrorModfwpcbMismatch       = -52
	ErrorModfwverMismatch       = -53
	ErrorModpropertyMismatch    = -54
	ErrorInvalidMagic           = -55
	ErrorInvalidLength          = -56
	ErrorRateFail               = -57
	ErrorModfwverTooLow         = -58
	ErrorModfwverTooHigh        = -59
	ErrorMBAckFail              = -60
	ErrorEEPROMF01              = -64
	ErrorUnsupportedFunction    = -80
)

var errorText = map[int]string{
	ErrorNone:                  "no error",
	ErrorDeviceOpenFail:        "failed to open device",
	ErrorDeviceBusy:            "device is busy",
	ErrorDeviceHeventFail:      "failed to create event handle",
	ErrorDeviceCallbsetFail:    "failed to set callback",
	ErrorDeviceBarmapFail:      "failed to map memory",
	ErrorDeviceCloseFail:       "failed to close device",
	ErrorDeviceResetFail:       "failed to reset device",
	ErrorDeviceGetversionFail:  "failed to get firmware version",
	ErrorDeviceVersionMismatch: "firmware version mismatch",
	ErrorDeviceNotOpen:         "device is not open",
	ErrorInstanceRunning:       "another instance is running",
	ErrorInvalidArgument:       "invalid argument",
	ErrorInvalidMode:           "invalid mode",
	ErrorInvalidOption:         "invalid option",
	ErrorInvalidMemory:         "invalid memory",
	ErrorInvalidRdata:          "invalid readback data",
	ErrorNotInitialized:        "device not initialized",
	ErrorNotCalibrated:         "device not calibrated",
	ErrorDMAFail:               "DMA failure",
	ErrorXtdeviceFail:          "XT device failure",
	ErrorFPGAConfFail:          "FPGA configuration failed",
	ErrorIfConfFail:            "interface configuration failed",
	ErrorFifoResetFail:         "FIFO reset failed",
	ErrorThreadStateFail:       "thread state failure",
	ErrorThreadLockFail:        "thread lock failure",
	ErrorUSBGetDriverVerFail:   "failed to get USB driver version",
	ErrorUSBDriverVerMismatch:  "USB driver version mismatch",
	ErrorUSBGetIfInfoFail:      "failed to get USB interface info",
	ErrorUSBHispeedFail:        "USB high speed not available",
	ErrorUSBVcmdFail:           "USB vendor command failed",
	ErrorUSBBulkrdFail:         "USB bulk read failed",
	ErrorUSBResetFail:          "USB reset failed",
	ErrorLaneupTimeout:         "lane up timeout",
	ErrorDoneallTimeout:        "done all timeout",
	ErrorMBAckTimeout:          "mainboard acknowledge timeout",
	ErrorMActiveTimeout:        "module active timeout",
	ErrorMemclearFail:          "memory clear failed",
	ErrorMemtestFail:           "memory test failed",
	ErrorCalibFail:             "calibration failed",
	ErrorRefselFail:            "reference selection failed",
	ErrorStatusFail:            "status check failed",
	ErrorModnumFail:            "module number failure",
	ErrorDigmuxFail:            "digital mux failure",
	ErrorModmuxFail:            "module mux failure",
	ErrorModfwpcbMismatch:      "module firmware/PCB mismatch",
	ErrorModfwverMismatch:      "module firmware version mismatch",
	ErrorModpropertyMismatch:   "module property mismatch",
	ErrorInvalidMagic:          "invalid magic",
	ErrorInvalidLength:         "invalid length",
	ErrorRateFail:              "rate measurement failed",
	ErrorModfwverTooLow:        "module firmware version too low",
	ErrorModfwverTooHigh:       "module firmware version too high",
	ErrorMBAckFail:             "mainboard acknowledge failed",
	ErrorEEPROMF01:             "EEPROM F01 failure",
	ErrorUnsupportedFunction:   "unsupported function",
}

// ErrorText расшифровывает код ошибки так же, как MH_GetErrorString.
// Используется симулятором и как запасной вариант для нативной привязки.
func ErrorText(code int) string {
	if s, ok := errorText[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", code)
}

// Failed сообщает, является ли код ошибкой.
func Failed(rc int) bool { return rc < 0 }
