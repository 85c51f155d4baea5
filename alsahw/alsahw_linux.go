//go:build linux

// Package alsahw implements the device.Device contract (§6.4) against
// real ALSA hardware via cgo, generalizing the blocking
// snd_pcm_readi/writei calls the teacher's audio backend used into
// ALSA's own non-blocking mmap begin/commit/avail/recover API, which
// is what the engine's scheduler actually needs.
package alsahw

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>
#include <string.h>

static int x_snd_pcm_mmap_begin(snd_pcm_t *pcm, const snd_pcm_channel_area_t **areas,
                                 snd_pcm_uframes_t *offset, snd_pcm_uframes_t *frames) {
	return snd_pcm_mmap_begin(pcm, areas, offset, frames);
}

static void *x_area_addr(const snd_pcm_channel_area_t *areas, snd_pcm_uframes_t offset, unsigned int frame_bytes) {
	unsigned char *base = (unsigned char *)areas[0].addr;
	return base + (areas[0].first / 8) + offset * frame_bytes;
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/format"
)

var nativeTable = mustTable()

func mustTable() *format.Table {
	t, err := format.NewTable(
		[2]int{int(format.EncodingU8), int(C.SND_PCM_FORMAT_U8)},
		[2]int{int(format.EncodingS16LE), int(C.SND_PCM_FORMAT_S16_LE)},
		[2]int{int(format.EncodingS24LE), int(C.SND_PCM_FORMAT_S24_3LE)},
		[2]int{int(format.EncodingS24_32LE), int(C.SND_PCM_FORMAT_S24_LE)},
		[2]int{int(format.EncodingS32LE), int(C.SND_PCM_FORMAT_S32_LE)},
		[2]int{int(format.EncodingF32LE), int(C.SND_PCM_FORMAT_FLOAT_LE)},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Device is a real ALSA PCM handle opened in mmap-interleaved,
// non-blocking mode.
type Device struct {
	handle *C.snd_pcm_t
	dir    device.Direction

	hwParams *C.snd_pcm_hw_params_t

	frameSize      int
	channels       int
	rate           int
	encoding       format.Encoding
	bufferFrames   int
	periodFrames   int
	startThreshold int
}

// New constructs an unopened Device.
func New() *Device {
	return &Device{}
}

func alsaErr(name string, rc C.int) error {
	if rc >= 0 {
		return nil
	}
	switch -int(rc) {
	case int(C.EPIPE):
		return device.ErrPipe
	case int(C.ESTRPIPE):
		return device.ErrStrpipe
	default:
		return fmt.Errorf("alsahw: %s: %s", name, C.GoString(C.snd_pcm_strerror(rc)))
	}
}

func (d *Device) Open(name string, dir device.Direction, flags device.OpenFlags) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var stream C.snd_pcm_stream_t
	if dir == device.Capture {
		stream = C.SND_PCM_STREAM_CAPTURE
	} else {
		stream = C.SND_PCM_STREAM_PLAYBACK
	}

	var openMode C.int
	if flags.NonBlocking {
		openMode = C.SND_PCM_NONBLOCK
	}
	if flags.NoAutoResample {
		openMode |= C.SND_PCM_NO_AUTO_RESAMPLE
	}
	if flags.NoAutoChannels {
		openMode |= C.SND_PCM_NO_AUTO_CHANNELS
	}
	if flags.NoAutoFormat {
		openMode |= C.SND_PCM_NO_AUTO_FORMAT
	}

	rc := C.snd_pcm_open(&d.handle, cname, stream, openMode)
	if err := alsaErr("snd_pcm_open", rc); err != nil {
		return err
	}
	d.dir = dir
	return nil
}

func (d *Device) Close() error {
	if d.handle == nil {
		return nil
	}
	rc := C.snd_pcm_close(d.handle)
	d.handle = nil
	return alsaErr("snd_pcm_close", rc)
}

// EnumerateFormats reports the intersection of this handle's
// SND_PCM_FORMAT_* mask with the engine's known encodings, plus the
// negotiable rate/channel ranges, per §4.1.
func (d *Device) EnumerateFormats() ([]format.Encoding, device.RateRange, device.ChannelRange, error) {
	var hw *C.snd_pcm_hw_params_t
	C.snd_pcm_hw_params_malloc(&hw)
	defer C.snd_pcm_hw_params_free(hw)

	if rc := C.snd_pcm_hw_params_any(d.handle, hw); rc < 0 {
		return nil, device.RateRange{}, device.ChannelRange{}, alsaErr("snd_pcm_hw_params_any", rc)
	}

	known := map[format.Encoding]bool{
		format.EncodingU8: true, format.EncodingS16LE: true, format.EncodingS24LE: true,
		format.EncodingS24_32LE: true, format.EncodingS32LE: true, format.EncodingF32LE: true,
	}
	var encodings []format.Encoding
	for enc := range known {
		native, ok := nativeTable.ToNative(enc)
		if !ok {
			continue
		}
		if C.snd_pcm_hw_params_test_format(d.handle, hw, C.snd_pcm_format_t(native)) == 0 {
			encodings = append(encodings, enc)
		}
	}

	var minRate, maxRate C.uint
	var minDir, maxDir C.int
	C.snd_pcm_hw_params_get_rate_min(hw, &minRate, &minDir)
	C.snd_pcm_hw_params_get_rate_max(hw, &maxRate, &maxDir)

	var minCh, maxCh C.uint
	C.snd_pcm_hw_params_get_channels_min(hw, &minCh)
	C.snd_pcm_hw_params_get_channels_max(hw, &maxCh)

	rates := device.RateRange{Min: int(minRate), Max: int(maxRate), Default: 48000}
	if rates.Default < rates.Min || rates.Default > rates.Max {
		rates.Default = rates.Min
	}
	channels := device.ChannelRange{Min: int(minCh), Max: int(maxCh), Default: 2}
	if channels.Default < channels.Min || channels.Default > channels.Max {
		channels.Default = channels.Min
	}

	return encodings, rates, channels, nil
}

func (d *Device) HWParamsAny() error {
	if d.hwParams == nil {
		C.snd_pcm_hw_params_malloc(&d.hwParams)
	}
	return alsaErr("snd_pcm_hw_params_any", C.snd_pcm_hw_params_any(d.handle, d.hwParams))
}

func (d *Device) SetAccessMMapInterleaved() error {
	return alsaErr("snd_pcm_hw_params_set_access",
		C.snd_pcm_hw_params_set_access(d.handle, d.hwParams, C.SND_PCM_ACCESS_MMAP_INTERLEAVED))
}

func (d *Device) SetPeriodWakeup(enabled bool) error {
	var v C.int
	if enabled {
		v = 1
	}
	rc := C.snd_pcm_hw_params_set_period_wakeup(d.handle, d.hwParams, v)
	if rc < 0 {
		// Not every kernel/driver combination supports disabling
		// period wakeups; the engine drives its own timer regardless,
		// so this is advisory only.
		return nil
	}
	return nil
}

func (d *Device) SetFormatExact(e format.Encoding) error {
	native, ok := nativeTable.ToNative(e)
	if !ok {
		return device.ErrUnsupportedFormat
	}
	if rc := C.snd_pcm_hw_params_set_format(d.handle, d.hwParams, C.snd_pcm_format_t(native)); rc < 0 {
		return alsaErr("snd_pcm_hw_params_set_format", rc)
	}
	d.encoding = e
	return nil
}

func (d *Device) SetChannelsNear(n int) (int, error) {
	val := C.uint(n)
	if rc := C.snd_pcm_hw_params_set_channels_near(d.handle, d.hwParams, &val); rc < 0 {
		return 0, alsaErr("snd_pcm_hw_params_set_channels_near", rc)
	}
	d.channels = int(val)
	return int(val), nil
}

func (d *Device) SetRateNear(hz int) (int, error) {
	val := C.uint(hz)
	var dir C.int
	if rc := C.snd_pcm_hw_params_set_rate_near(d.handle, d.hwParams, &val, &dir); rc < 0 {
		return 0, alsaErr("snd_pcm_hw_params_set_rate_near", rc)
	}
	d.rate = int(val)
	return int(val), nil
}

func (d *Device) SetPeriodSizeNear(frames int) (int, error) {
	val := C.snd_pcm_uframes_t(frames)
	var dir C.int
	if rc := C.snd_pcm_hw_params_set_period_size_near(d.handle, d.hwParams, &val, &dir); rc < 0 {
		return 0, alsaErr("snd_pcm_hw_params_set_period_size_near", rc)
	}
	d.periodFrames = int(val)
	return int(val), nil
}

func (d *Device) SetBufferSizeNear(frames int) (int, error) {
	val := C.snd_pcm_uframes_t(frames)
	if rc := C.snd_pcm_hw_params_set_buffer_size_near(d.handle, d.hwParams, &val); rc < 0 {
		return 0, alsaErr("snd_pcm_hw_params_set_buffer_size_near", rc)
	}
	d.bufferFrames = int(val)
	return int(val), nil
}

func (d *Device) CommitHWParams() error {
	if rc := C.snd_pcm_hw_params(d.handle, d.hwParams); rc < 0 {
		return alsaErr("snd_pcm_hw_params", rc)
	}
	d.frameSize = d.channels * d.encoding.BytesPerSample()
	return nil
}

func (d *Device) SetSWParams(sw device.SWParams) error {
	var swp *C.snd_pcm_sw_params_t
	C.snd_pcm_sw_params_malloc(&swp)
	defer C.snd_pcm_sw_params_free(swp)

	if rc := C.snd_pcm_sw_params_current(d.handle, swp); rc < 0 {
		return alsaErr("snd_pcm_sw_params_current", rc)
	}
	d.startThreshold = sw.StartThreshold
	if rc := C.snd_pcm_sw_params_set_start_threshold(d.handle, swp, C.snd_pcm_uframes_t(sw.StartThreshold)); rc < 0 {
		return alsaErr("snd_pcm_sw_params_set_start_threshold", rc)
	}
	var tstampMode C.snd_pcm_tstamp_t
	if sw.TimestampMode {
		tstampMode = C.SND_PCM_TSTAMP_ENABLE
	}
	C.snd_pcm_sw_params_set_tstamp_mode(d.handle, swp, tstampMode)
	if rc := C.snd_pcm_sw_params(d.handle, swp); rc < 0 {
		return alsaErr("snd_pcm_sw_params", rc)
	}
	return nil
}

func (d *Device) Avail() (int, error) {
	n := C.snd_pcm_avail_update(d.handle)
	if n < 0 {
		return 0, alsaErr("snd_pcm_avail_update", C.int(n))
	}
	return int(n), nil
}

func (d *Device) Status() (device.Status, error) {
	var st *C.snd_pcm_status_t
	C.snd_pcm_status_malloc(&st)
	defer C.snd_pcm_status_free(st)

	if rc := C.snd_pcm_status(d.handle, st); rc < 0 {
		return device.Status{}, alsaErr("snd_pcm_status", rc)
	}

	avail := int(C.snd_pcm_status_get_avail(st))
	delay := int(C.snd_pcm_status_get_delay(st))

	var ts C.snd_htimestamp_t
	C.snd_pcm_status_get_trigger_htstamp(st, &ts)
	trigger := time.Unix(int64(ts.tv_sec), int64(ts.tv_nsec))

	return device.Status{TriggerTime: trigger, AvailFrames: avail, DelayFrames: delay}, nil
}

func (d *Device) MmapBegin() (int, int, error) {
	var areas *C.snd_pcm_channel_area_t
	var offset, frames C.snd_pcm_uframes_t

	rc := C.x_snd_pcm_mmap_begin(d.handle, &areas, &offset, &frames)
	if rc < 0 {
		return 0, 0, alsaErr("snd_pcm_mmap_begin", rc)
	}
	return int(offset), int(frames), nil
}

func (d *Device) MmapCommit(offset, frames int) (int, error) {
	n := C.snd_pcm_mmap_commit(d.handle, C.snd_pcm_uframes_t(offset), C.snd_pcm_uframes_t(frames))
	if n < 0 {
		return 0, alsaErr("snd_pcm_mmap_commit", C.int(n))
	}
	return int(n), nil
}

func (d *Device) areaPtr() (*C.snd_pcm_channel_area_t, error) {
	var areas *C.snd_pcm_channel_area_t
	var offset, frames C.snd_pcm_uframes_t
	rc := C.x_snd_pcm_mmap_begin(d.handle, &areas, &offset, &frames)
	if rc < 0 {
		return nil, alsaErr("snd_pcm_mmap_begin", rc)
	}
	return areas, nil
}

func (d *Device) AreasSilence(offset, frames int) error {
	areas, err := d.areaPtr()
	if err != nil {
		return err
	}
	if rc := C.snd_pcm_areas_silence(areas, C.snd_pcm_uframes_t(offset), C.uint(d.channels), C.snd_pcm_uframes_t(frames),
		C.snd_pcm_format_t(mustNative(d.encoding))); rc < 0 {
		return alsaErr("snd_pcm_areas_silence", rc)
	}
	return nil
}

func (d *Device) WriteFrames(offset int, data []byte) error {
	areas, err := d.areaPtr()
	if err != nil {
		return err
	}
	dst := C.x_area_addr(areas, C.snd_pcm_uframes_t(offset), C.uint(d.frameSize))
	C.memcpy(dst, unsafe.Pointer(&data[0]), C.size_t(len(data)))
	return nil
}

func (d *Device) ReadFrames(offset, frames int) ([]byte, error) {
	areas, err := d.areaPtr()
	if err != nil {
		return nil, err
	}
	n := frames * d.frameSize
	src := C.x_area_addr(areas, C.snd_pcm_uframes_t(offset), C.uint(d.frameSize))
	out := C.GoBytes(src, C.int(n))
	return out, nil
}

// Recover implements §4.6's xrun recovery: snd_pcm_recover already
// knows how to resume from both -EPIPE and -ESTRPIPE (it calls
// snd_pcm_prepare, or waits for the suspend to clear first), so the
// cause is only translated back to its negative errno and handed to
// it, with no per-cause handling here.
func (d *Device) Recover(cause error) error {
	errno := C.int(0)
	switch cause {
	case device.ErrStrpipe:
		errno = -C.int(C.ESTRPIPE)
	default:
		errno = -C.int(C.EPIPE)
	}
	rc := C.snd_pcm_recover(d.handle, errno, 1)
	return alsaErr("snd_pcm_recover", rc)
}

func (d *Device) Start() error {
	return alsaErr("snd_pcm_start", C.snd_pcm_start(d.handle))
}

func (d *Device) Rewind(frames int) error {
	n := C.snd_pcm_rewind(d.handle, C.snd_pcm_uframes_t(frames))
	if n < 0 {
		return alsaErr("snd_pcm_rewind", C.int(n))
	}
	return nil
}

func (d *Device) Drop() error {
	return alsaErr("snd_pcm_drop", C.snd_pcm_drop(d.handle))
}

func (d *Device) HWParams() (device.Params, device.BufferSizes, error) {
	params := device.Params{Encoding: d.encoding, RateHz: d.rate, Channels: d.channels}
	sizes := device.BufferSizes{BufferFrames: d.bufferFrames, PeriodFrames: d.periodFrames}
	return params, sizes, nil
}

func mustNative(e format.Encoding) format.NativeCode {
	n, _ := nativeTable.ToNative(e)
	return n
}

var _ device.Device = (*Device)(nil)
