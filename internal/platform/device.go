package platform

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// pcmFrameSize is the byte size of one decoded frame: 16-bit stereo
const pcmFrameSize = 4

// DeviceElement plays decoded MP3 content through the default audio output
// device using miniaudio. It implements Element for runtimes where the probe
// found a real audio output.
type DeviceElement struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	events chan Event

	src        Source
	dec        *mp3.Decoder
	sampleRate int
	pcmLength  int64
	bytePos    int64

	loaded   bool
	errored  bool
	playing  bool
	ended    bool
	stopping bool
	rate     float64
	volume   float64
}

// NewDeviceElement creates a device-backed element. Fails when no audio
// backend can be initialized.
func NewDeviceElement() (*DeviceElement, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &DeviceElement{
		ctx:    ctx,
		events: make(chan Event, 16),
		rate:   1.0,
		volume: 1.0,
	}, nil
}

// Load decodes the source header and prepares the element for playback
func (e *DeviceElement) Load(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownDeviceLocked()

	if !isMPEG(src.MediaType) {
		e.errored = true
		e.loaded = false
		return fmt.Errorf("media type %q: %w", src.MediaType, ErrUnsupportedMedia)
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(src.Data))
	if err != nil {
		e.errored = true
		e.loaded = false
		return fmt.Errorf("decode %s: %w", src.FileID, ErrUnsupportedMedia)
	}

	e.src = src
	e.dec = dec
	e.sampleRate = dec.SampleRate()
	e.pcmLength = dec.Length()
	e.bytePos = 0
	e.loaded = true
	e.errored = false
	e.playing = false
	e.ended = false
	return nil
}

func isMPEG(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.Contains(mt, "mpeg") || strings.Contains(mt, "mp3")
}

// Play starts or resumes playback on the output device
func (e *DeviceElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.errored {
		return ErrUnsupportedMedia
	}
	if e.playing {
		return nil
	}

	if e.device == nil {
		if err := e.initDeviceLocked(); err != nil {
			e.errored = true
			return err
		}
	}

	e.stopping = false
	if err := e.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	e.playing = true
	return nil
}

// Pause halts the output device, keeping the decode position
func (e *DeviceElement) Pause() {
	e.mu.Lock()
	device := e.device
	wasPlaying := e.playing
	e.stopping = true
	e.playing = false
	e.mu.Unlock()

	// Stop outside the lock: the data callback takes the same mutex
	if device != nil && wasPlaying {
		_ = device.Stop()
	}
}

// Paused reports whether the element is currently not playing
func (e *DeviceElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

// Seek moves the decode position to the given time
func (e *DeviceElement) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.dec == nil {
		return ErrUnsupportedMedia
	}
	if seconds < 0 {
		seconds = 0
	}

	offset := int64(seconds*float64(e.sampleRate)) * pcmFrameSize
	if e.pcmLength > 0 && offset > e.pcmLength {
		offset = e.pcmLength
	}
	// Frame alignment keeps channels from swapping
	offset -= offset % pcmFrameSize

	if _, err := e.dec.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	e.bytePos = offset
	e.ended = false
	return nil
}

// CurrentTime returns the playhead position in seconds of media time
func (e *DeviceElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sampleRate == 0 {
		return 0
	}
	return float64(e.bytePos) / float64(e.sampleRate*pcmFrameSize)
}

// Duration returns the decoded source duration in seconds
func (e *DeviceElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sampleRate == 0 {
		return 0
	}
	if e.pcmLength <= 0 {
		return e.src.Duration
	}
	return float64(e.pcmLength) / float64(e.sampleRate*pcmFrameSize)
}

// SetVolume sets the output volume in [0, 1]
func (e *DeviceElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp01(v)
}

// SetRate sets the playback rate by re-opening the device at a scaled output
// sample rate.
func (e *DeviceElement) SetRate(r float64) {
	if r <= 0 {
		r = 1.0
	}

	e.mu.Lock()
	e.rate = r
	device := e.device
	wasPlaying := e.playing
	e.stopping = true
	e.playing = false
	e.device = nil
	e.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}

	if wasPlaying {
		_ = e.Play()
	}
}

// Valid reports whether the element holds a usable, non-errored source
func (e *DeviceElement) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded && !e.errored
}

// Source returns the identity of the loaded source
func (e *DeviceElement) Source() (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", "", false
	}
	return e.src.BookID, e.src.FileID, true
}

// Events delivers asynchronous element signals
func (e *DeviceElement) Events() <-chan Event {
	return e.events
}

// Close releases the device and the audio context
func (e *DeviceElement) Close() {
	e.mu.Lock()
	e.stopping = true
	e.playing = false
	e.loaded = false
	device := e.device
	e.device = nil
	ctx := e.ctx
	e.ctx = nil
	e.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if ctx != nil {
		_ = ctx.Uninit()
		ctx.Free()
	}
}

func (e *DeviceElement) initDeviceLocked() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 2
	deviceConfig.SampleRate = uint32(float64(e.sampleRate) * e.rate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: e.onData,
		Stop: e.onStop,
	}

	device, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	e.device = device
	return nil
}

// onData feeds decoded PCM to the device. Runs on the audio thread, so it
// must never block on anything slower than the decoder.
func (e *DeviceElement) onData(outputSamples, _ []byte, frameCount uint32) {
	needed := int(frameCount) * pcmFrameSize

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dec == nil || !e.playing || e.ended {
		fillSilence(outputSamples[:needed])
		return
	}

	n, err := io.ReadFull(e.dec, outputSamples[:needed])
	e.bytePos += int64(n)
	applyVolume(outputSamples[:n], e.volume)
	if n < needed {
		fillSilence(outputSamples[n:needed])
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if !e.ended {
			e.ended = true
			e.playing = false
			select {
			case e.events <- Event{Kind: EventEnded}:
			default:
			}
		}
		return
	}
	if err != nil {
		e.errored = true
		e.playing = false
		select {
		case e.events <- Event{Kind: EventError, Err: err}:
		default:
		}
	}
}

// onStop fires when the device stops. A stop nobody asked for (device lost,
// OS suspension) surfaces as a stall so the engine can resume in place.
func (e *DeviceElement) onStop() {
	e.mu.Lock()
	unexpected := e.playing && !e.stopping
	if unexpected {
		e.playing = false
	}
	e.mu.Unlock()

	if unexpected {
		select {
		case e.events <- Event{Kind: EventStalled}:
		default:
		}
	}
}

func (e *DeviceElement) teardownDeviceLocked() {
	if e.device != nil {
		e.stopping = true
		device := e.device
		e.device = nil
		// Uninit implies stop; safe here because Load is never called from
		// the audio thread
		device.Uninit()
	}
	e.playing = false
}

func fillSilence(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// applyVolume scales 16-bit little-endian samples in place
func applyVolume(buf []byte, volume float64) {
	if volume >= 1.0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
		scaled := int16(float64(sample) * volume)
		buf[i] = byte(uint16(scaled))
		buf[i+1] = byte(uint16(scaled) >> 8)
	}
}
