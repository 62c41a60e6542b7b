package mhlib

// Library повторяет функции MHLib, которые использует адаптер. Последнее
// возвращаемое значение каждого метода является кодом возврата без
// преобразований, его интерпретирует вызывающая сторона.
type Library interface {
	GetLibraryVersion() (version string, rc int)
	GetErrorString(code int) (text string, rc int)

	OpenDevice(devidx int) (serial string, rc int)
	CloseDevice(devidx int) int
	Initialize(devidx, mode, refsource int) int

	GetHardwareInfo(devidx int) (model, partno, version string, rc int)
	GetNumOfInputChannels(devidx int) (n int, rc int)

	SetSyncDiv(devidx, div int) int
	SetSyncEdgeTrg(devidx, level, edge int) int
	SetSyncChannelOffset(devidx, value int) int

	SetInputEdgeTrg(devidx, channel, level, edge int) int
	SetInputChannelOffset(devidx, channel, value int) int
	SetInputChannelEnable(devidx, channel, enable int) int

	SetStopOverflow(devidx, stopOvfl int, stopcount uint32) int
	SetBinning(devidx, binning int) int
	SetOffset(devidx, offset int) int
	SetHistoLen(devidx, lencode int) (actuallen int, rc int)

	ClearHistMem(devidx int) int
	StartMeas(devidx, tacq int) int
	StopMeas(devidx int) int
	CTCStatus(devidx int) (ctcstatus int, rc int)

	// GetHistogram заполняет buf счетами одного канала, len(buf) не меньше
	// текущей длины гистограммы.
	GetHistogram(devidx int, buf []uint32, channel int) int
	// GetAllHistograms заполняет buf счетами всех каналов устройства подряд.
	GetAllHistograms(devidx int, buf []uint32) int

	GetResolution(devidx int) (resolution float64, rc int)
	GetSyncRate(devidx int) (rate int, rc int)
	GetCountRate(devidx, channel int) (rate int, rc int)
	GetFlags(devidx int) (flags int, rc int)
	GetWarnings(devidx int) (warnings int, rc int)
	GetWarningsText(devidx, warnings int) (text string, rc int)
	GetDebugInfo(devidx int) (info string, rc int)
}
