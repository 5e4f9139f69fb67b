package audio

import "time"

// DefaultSampleRate is used for degenerate buffers that never reach an engine.
const DefaultSampleRate = 22050

// Buffer is mono float32 PCM in [-1,1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Silence returns a one-sample silent buffer at DefaultSampleRate.
func Silence() Buffer {
	return Buffer{Samples: make([]float32, 1), SampleRate: DefaultSampleRate}
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Device is one audio endpoint as reported by a Backend.
type Device struct {
	Index             int
	Name              string
	MaxOutputChannels int
}

// Backend enumerates devices and opens mono output streams. A nil device
// selects the system default output.
type Backend interface {
	Devices() ([]Device, error)
	OpenOutput(device *Device, sampleRate float64, framesPerBuffer int) (Stream, error)
}

// Stream is an open blocking output stream.
type Stream interface {
	Start() error
	// Write blocks until samples have been queued to the device.
	Write(samples []float32) error
	Stop() error
	// Abort discards pending output and returns immediately.
	Abort() error
	Close() error
}

// OutputNames filters devices to output-capable ones and de-duplicates by
// name, keeping the first occurrence.
func OutputNames(devices []Device) []string {
	seen := make(map[string]bool, len(devices))
	var names []string
	for _, d := range devices {
		if d.MaxOutputChannels <= 0 || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		names = append(names, d.Name)
	}
	return names
}

// FindOutput returns the first output-capable device called name.
func FindOutput(devices []Device, name string) (*Device, bool) {
	if name == "" {
		return nil, false
	}
	for i := range devices {
		if devices[i].MaxOutputChannels > 0 && devices[i].Name == name {
			d := devices[i]
			return &d, true
		}
	}
	return nil, false
}

// ShouldPrefer reports whether preferred is an available output that is not
// yet the selected device.
func ShouldPrefer(outputs []string, current, preferred string) bool {
	if preferred == "" || current == preferred {
		return false
	}
	for _, name := range outputs {
		if name == preferred {
			return true
		}
	}
	return false
}
