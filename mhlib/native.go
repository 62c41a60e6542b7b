//go:build mhlib

package mhlib

/*
#cgo CFLAGS: -I${SRCDIR}/../lib
#cgo LDFLAGS: -L${SRCDIR}/../lib -lmhlib
#cgo linux LDFLAGS: -Wl,-rpath,${SRCDIR}/../lib

#include <stdlib.h>
#include "mhdefin.h"
#include "mhlib.h"
#include "errorcodes.h"
*/
import "C"

import (
	"strings"
	"unsafe"
)

// Native вызывает функции libmhlib через cgo.
type Native struct{}

// Убедимся, что Native удовлетворяет интерфейсу Library.
var _ Library = (*Native)(nil)

// NewNative возвращает привязку к установленной библиотеке.
func NewNative() *Native { return &Native{} }

func trimNull(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}

func cbuf(n int) []byte { return make([]byte, n) }

func cstr(b []byte) *C.char { return (*C.char)(unsafe.Pointer(&b[0])) }

func (Native) GetLibraryVersion() (string, int) {
	buf := cbuf(8)
	rc := C.MH_GetLibraryVersion(cstr(buf))
	return trimNull(string(buf)), int(rc)
}

func (Native) GetErrorString(code int) (string, int) {
	buf := cbuf(ErrorStringLen)
	rc := C.MH_GetErrorString(cstr(buf), C.int(code))
	return trimNull(string(buf)), int(rc)
}

func (Native) OpenDevice(devidx int) (string, int) {
	buf := cbuf(32)
	rc := C.MH_OpenDevice(C.int(devidx), cstr(buf))
	return trimNull(string(buf)), int(rc)
}

func (Native) CloseDevice(devidx int) int {
	return int(C.MH_CloseDevice(C.int(devidx)))
}

func (Native) Initialize(devidx, mode, refsource int) int {
	return int(C.MH_Initialize(C.int(devidx), C.int(mode), C.int(refsource)))
}

func (Native) GetHardwareInfo(devidx int) (string, string, string, int) {
	model, partno, version := cbuf(32), cbuf(16), cbuf(16)
	rc := C.MH_GetHardwareInfo(C.int(devidx), cstr(model), cstr(partno), cstr(version))
	return trimNull(string(model)), trimNull(string(partno)), trimNull(string(version)), int(rc)
}

func (Native) GetNumOfInputChannels(devidx int) (int, int) {
	var n C.int
	rc := C.MH_GetNumOfInputChannels(C.int(devidx), &n)
	return int(n), int(rc)
}

func (Native) SetSyncDiv(devidx, div int) int {
	return int(C.MH_SetSyncDiv(C.int(devidx), C.int(div)))
}

func (Native) SetSyncEdgeTrg(devidx, level, edge int) int {
	return int(C.MH_SetSyncEdgeTrg(C.int(devidx), C.int(level), C.int(edge)))
}

func (Native) SetSyncChannelOffset(devidx, value int) int {
	return int(C.MH_SetSyncChannelOffset(C.int(devidx), C.int(value)))
}

func (Native) SetInputEdgeTrg(devidx, channel, level, edge int) int {
	return int(C.MH_SetInputEdgeTrg(C.int(devidx), C.int(channel), C.int(level), C.int(edge)))
}

func (Native) SetInputChannelOffset(devidx, channel, value int) int {
	return int(C.MH_SetInputChannelOffset(C.int(devidx), C.int(channel), C.int(value)))
}

func (Native) SetInputChannelEnable(devidx, channel, enable int) int {
	return int(C.MH_SetInputChannelEnable(C.int(devidx), C.int(channel), C.int(enable)))
}

func (Native) SetStopOverflow(devidx, stopOvfl int, stopcount uint32) int {
	return int(C.MH_SetStopOverflow(C.int(devidx), C.int(stopOvfl), C.uint(stopcount)))
}

func (Native) SetBinning(devidx, binning int) int {
	return int(C.MH_SetBinning(C.int(devidx), C.int(binning)))
}

func (Native) SetOffset(devidx, offset int) int {
	return int(C.MH_SetOffset(C.int(devidx), C.int(offset)))
}

func (Native) SetHistoLen(devidx, lencode int) (int, int) {
	var actual C.int
	rc := C.MH_SetHistoLen(C.int(devidx), C.int(lencode), &actual)
	return int(actual), int(rc)
}

func (Native) ClearHistMem(devidx int) int {
	return int(C.MH_ClearHistMem(C.int(devidx)))
}

func (Native) StartMeas(devidx, tacq int) int {
	return int(C.MH_StartMeas(C.int(devidx), C.int(tacq)))
}

func (Native) StopMeas(devidx int) int {
	return int(C.MH_StopMeas(C.int(devidx)))
}

func (Native) CTCStatus(devidx int) (int, int) {
	var status C.int
	rc := C.MH_CTCStatus(C.int(devidx), &status)
	return int(status), int(rc)
}

func (Native) GetHistogram(devidx int, buf []uint32, channel int) int {
	if len(buf) == 0 {
		return ErrorInvalidArgument
	}
	return int(C.MH_GetHistogram(C.int(devidx), (*C.uint)(unsafe.Pointer(&buf[0])), C.int(channel)))
}

func (Native) GetAllHistograms(devidx int, buf []uint32) int {
	if len(buf) == 0 {
		return ErrorInvalidArgument
	}
	return int(C.MH_GetAllHistograms(C.int(devidx), (*C.uint)(unsafe.Pointer(&buf[0]))))
}

func (Native) GetResolution(devidx int) (float64, int) {
	var res C.double
	rc := C.MH_GetResolution(C.int(devidx), &res)
	return float64(res), int(rc)
}

func (Native) GetSyncRate(devidx int) (int, int) {
	var rate C.int
	rc := C.MH_GetSyncRate(C.int(devidx), &rate)
	return int(rate), int(rc)
}

func (Native) GetCountRate(devidx, channel int) (int, int) {
	var rate C.int
	rc := C.MH_GetCountRate(C.int(devidx), C.int(channel), &rate)
	return int(rate), int(rc)
}

func (Native) GetFlags(devidx int) (int, int) {
	var flags C.int
	rc := C.MH_GetFlags(C.int(devidx), &flags)
	return int(flags), int(rc)
}

func (Native) GetWarnings(devidx int) (int, int) {
	var warnings C.int
	rc := C.MH_GetWarnings(C.int(devidx), &warnings)
	return int(warnings), int(rc)
}

func (Native) GetWarningsText(devidx, warnings int) (string, int) {
	buf := cbuf(DebugInfoLen)
	rc := C.MH_GetWarningsText(C.int(devidx), cstr(buf), C.int(warnings))
	return trimNull(string(buf)), int(rc)
}

func (Native) GetDebugInfo(devidx int) (string, int) {
	buf := cbuf(DebugInfoLen)
	rc := C.MH_GetDebugInfo(C.int(devidx), cstr(buf))
	return trimNull(string(buf)), int(rc)
}
