package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// Output formats understood by the exec engine.
const (
	FormatRaw   = "raw"
	FormatJSONL = "jsonl"
	FormatWAV   = "wav"
)

const rawChunkBytes = 4096

type execEngine struct {
	cmd    []string
	format string
	mu     sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Config     string `json:"config,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64    string    `json:"pcm_base64"`
	SamplesInt16 []int16   `json:"samples_int16"`
	SamplesFloat []float32 `json:"samples_float"`
	Final        bool      `json:"final"`
}

// NewExecEngine runs command once per request. "{model}" and "{config}"
// arguments expand to the model path and its sidecar config.
func NewExecEngine(command, format string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	switch format {
	case FormatRaw, FormatJSONL, FormatWAV:
	default:
		return nil, fmt.Errorf("unsupported tts output format %q", format)
	}
	return &execEngine{cmd: args, format: format}, nil
}

func expandArgs(args []string, req Request) []string {
	model, config := "", ""
	if req.Model != nil {
		model = req.Model.Path
		config = req.Model.ConfigPath
		if config == "" {
			config = model + ".json"
		}
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.ReplaceAll(a, "{model}", model)
		a = strings.ReplaceAll(a, "{config}", config)
		out = append(out, a)
	}
	return out
}

func (e *execEngine) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		if err := e.run(ctx, req, chunks); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

func (e *execEngine) run(ctx context.Context, req Request, chunks chan<- Chunk) error {
	stdinPayload, err := e.stdinPayload(req)
	if err != nil {
		return err
	}

	args := expandArgs(e.cmd, req)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tts command: %w", err)
	}

	go func() {
		_, _ = stdin.Write(stdinPayload)
		stdin.Close()
	}()

	var readErr error
	switch e.format {
	case FormatRaw:
		readErr = readRaw(ctx, stdout, chunks)
	case FormatJSONL:
		readErr = readJSONL(ctx, stdout, chunks)
	case FormatWAV:
		readErr = readWAV(ctx, stdout, chunks)
	}
	if readErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("tts command failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (e *execEngine) stdinPayload(req Request) ([]byte, error) {
	if e.format != FormatJSONL {
		return []byte(strings.TrimSpace(req.Text) + "\n"), nil
	}
	payload := execRequest{Text: req.Text}
	if req.Model != nil {
		payload.Model = req.Model.Path
		payload.Config = req.Model.ConfigPath
		payload.SampleRate = req.Model.SampleRate
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func send(ctx context.Context, chunks chan<- Chunk, chunk Chunk) error {
	select {
	case chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readRaw(ctx context.Context, r io.Reader, chunks chan<- Chunk) error {
	reader := bufio.NewReaderSize(r, rawChunkBytes)
	buf := make([]byte, rawChunkBytes)
	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if sendErr := send(ctx, chunks, RawChunk(data)); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func readJSONL(ctx context.Context, r io.Reader, chunks chan<- Chunk) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("decode tts output: %w", err)
		}
		var chunk Chunk
		switch {
		case resp.PCMBase64 != "":
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				return fmt.Errorf("decode pcm: %w", err)
			}
			chunk = RawChunk(pcm)
		case resp.SamplesInt16 != nil:
			chunk = Int16Chunk(resp.SamplesInt16)
		case resp.SamplesFloat != nil:
			chunk = FloatChunk(resp.SamplesFloat)
		default:
			chunk = RawChunk(nil)
		}
		chunk.Final = resp.Final
		if err := send(ctx, chunks, chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func readWAV(ctx context.Context, r io.Reader, chunks chan<- Chunk) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return fmt.Errorf("tts output is not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}
	depth := int(dec.BitDepth)
	samples := make([]int16, 0, len(buf.Data)/channels)
	// Keep the first channel only; playback is mono.
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, toInt16(buf.Data[i], depth))
	}
	chunk := Int16Chunk(samples)
	chunk.Final = true
	return send(ctx, chunks, chunk)
}

func toInt16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	}
	return int16(v)
}
