// Package portaudio implements audio.Backend on top of PortAudio.
package portaudio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-say/internal/audio"
)

// Backend owns the PortAudio library lifetime.
type Backend struct {
	mu     sync.Mutex
	closed bool
}

// Open initializes PortAudio. Close must be called on shutdown.
func Open() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Backend{}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}

func (b *Backend) Devices() ([]audio.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	devices := make([]audio.Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, audio.Device{
			Index:             info.Index,
			Name:              info.Name,
			MaxOutputChannels: info.MaxOutputChannels,
		})
	}
	return devices, nil
}

// OpenOutput opens a mono float32 blocking stream. A nil device, or one that
// no longer exists, selects the default output device.
func (b *Backend) OpenOutput(device *audio.Device, sampleRate float64, framesPerBuffer int) (audio.Stream, error) {
	info, err := lookup(device)
	if err != nil {
		return nil, err
	}
	s := &stream{buf: make([]float32, framesPerBuffer)}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	pa, err := portaudio.OpenStream(params, &s.buf)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", info.Name, err)
	}
	s.pa = pa
	return s, nil
}

func lookup(device *audio.Device) (*portaudio.DeviceInfo, error) {
	if device != nil {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		for _, info := range infos {
			if info.Index == device.Index && info.Name == device.Name {
				return info, nil
			}
		}
	}
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("default output device: %w", err)
	}
	return info, nil
}

type stream struct {
	pa  *portaudio.Stream
	buf []float32
}

func (s *stream) Start() error { return s.pa.Start() }

// Write copies samples into the stream buffer, padding a short final block
// with silence.
func (s *stream) Write(samples []float32) error {
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.pa.Write(); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

func (s *stream) Stop() error  { return s.pa.Stop() }
func (s *stream) Abort() error { return s.pa.Abort() }
func (s *stream) Close() error { return s.pa.Close() }
