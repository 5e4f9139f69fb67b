package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrModelLoad matches every ModelLoadError.
	ErrModelLoad = errors.New("voice model load failed")
	// ErrNoModelAvailable is returned when no voice is configured and none can be discovered.
	ErrNoModelAvailable = errors.New("no voice model available")
)

// ModelLoadError reports a voice file that is missing, malformed or rejected by the engine.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load voice model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// Model is a loaded voice. The engine reads ConfigPath when it needs more than
// the sample rate.
type Model struct {
	Path       string
	ConfigPath string
	SampleRate int
	Language   string
	Speaker    string
}

// Loader turns a model path into a Model.
type Loader interface {
	Load(path string) (*Model, error)
}

// FileLoader validates the model file and reads its "<model>.json" sidecar.
type FileLoader struct {
	DefaultSampleRate int
}

type sidecar struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Espeak struct {
		Voice string `json:"voice"`
	} `json:"espeak"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
}

func (l FileLoader) Load(path string) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &ModelLoadError{Path: path, Err: errors.New("is a directory")}
	}
	if info.Size() == 0 {
		return nil, &ModelLoadError{Path: path, Err: errors.New("empty model file")}
	}

	model := &Model{Path: path, SampleRate: l.DefaultSampleRate}
	if model.SampleRate <= 0 {
		model.SampleRate = 22050
	}

	configPath := path + ".json"
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		return model, nil
	case err != nil:
		return nil, &ModelLoadError{Path: path, Err: fmt.Errorf("read config: %w", err)}
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, &ModelLoadError{Path: path, Err: fmt.Errorf("parse config: %w", err)}
	}
	model.ConfigPath = configPath
	if sc.Audio.SampleRate > 0 {
		model.SampleRate = sc.Audio.SampleRate
	}
	model.Speaker = sc.Espeak.Voice
	model.Language = sc.Language.Code
	return model, nil
}
