package tts

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-say/internal/voice"
)

// TestHelperProcess is not a real test. It stands in for a synthesis binary
// when re-executed by helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "missing helper mode")
		os.Exit(2)
	}
	input, _ := io.ReadAll(os.Stdin)
	switch args[1] {
	case "raw":
		// One int16 sample per input byte, so the test can verify stdin.
		out := make([]byte, 0, len(input)*2)
		for _, b := range input {
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(b)*100))
		}
		os.Stdout.Write(out)
	case "jsonl":
		var req execRequest
		if err := json.Unmarshal(input, &req); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.Encode(map[string]any{"pcm_base64": base64.StdEncoding.EncodeToString([]byte{0x00, 0x40})})
		enc.Encode(map[string]any{"samples_int16": []int16{int16(req.SampleRate / 1000)}})
		enc.Encode(map[string]any{"samples_float": []float32{-0.5}, "final": true})
	case "wav":
		tmp, err := os.CreateTemp("", "helper-*.wav")
		if err != nil {
			os.Exit(4)
		}
		enc := wav.NewEncoder(tmp, 16000, 16, 2, 1)
		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: 2, SampleRate: 16000},
			Data:   []int{1000, -1, -2000, -1, 3000, -1},
		}
		enc.Write(buf)
		enc.Close()
		tmp.Seek(0, io.SeekStart)
		io.Copy(os.Stdout, tmp)
		tmp.Close()
		os.Remove(tmp.Name())
	case "fail":
		fmt.Fprintln(os.Stderr, "voice exploded")
		os.Exit(6)
	case "hang":
		time.Sleep(10 * time.Second)
	}
	os.Exit(0)
}

func helperCommand(mode string) string {
	return fmt.Sprintf("'%s' -test.run=TestHelperProcess -- %s", os.Args[0], mode)
}

func drain(t *testing.T, engine Engine, req Request) ([]Chunk, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	chunks, errs := engine.Synthesize(ctx, req)
	var got []Chunk
	var err error
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			got = append(got, c)
		case e, ok := <-errs:
			if ok && e != nil {
				err = e
			}
			errs = nil
		}
	}
	return got, err
}

func TestExecEngineRaw(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewExecEngine(helperCommand("raw"), FormatRaw)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	chunks, err := drain(t, engine, Request{Text: "  ab  "})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	var pcm []byte
	for _, c := range chunks {
		if c.Kind != RawBytes {
			t.Fatalf("expected raw chunks, got %v", c.Kind)
		}
		pcm, _ = c.AppendPCM(pcm)
	}
	// "ab\n" trimmed input, one sample per byte.
	if len(pcm) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm)); got != int16('a')*100 {
		t.Fatalf("unexpected first sample %d", got)
	}
}

func TestExecEngineJSONL(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewExecEngine(helperCommand("jsonl"), FormatJSONL)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	model := &voice.Model{Path: "/voices/v.onnx", SampleRate: 22050}
	chunks, err := drain(t, engine, Request{Text: "hello", Model: model})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Kind != RawBytes || chunks[1].Kind != Int16Samples || chunks[2].Kind != FloatSamples {
		t.Fatalf("unexpected chunk kinds %v %v %v", chunks[0].Kind, chunks[1].Kind, chunks[2].Kind)
	}
	if chunks[1].Int16[0] != 22 {
		t.Fatalf("expected sample rate echoed through request, got %d", chunks[1].Int16[0])
	}
	if !chunks[2].Final {
		t.Fatal("expected final flag on last chunk")
	}
}

func TestExecEngineWAV(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewExecEngine(helperCommand("wav"), FormatWAV)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	chunks, err := drain(t, engine, Request{Text: "hello"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Kind != Int16Samples {
		t.Fatalf("expected one int16 chunk, got %+v", chunks)
	}
	want := []int16{1000, -2000, 3000}
	if len(chunks[0].Int16) != len(want) {
		t.Fatalf("expected first channel only, got %v", chunks[0].Int16)
	}
	for i := range want {
		if chunks[0].Int16[i] != want[i] {
			t.Fatalf("sample %d: got %d want %d", i, chunks[0].Int16[i], want[i])
		}
	}
}

func TestExecEngineFailureIncludesStderr(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewExecEngine(helperCommand("fail"), FormatRaw)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = drain(t, engine, Request{Text: "hello"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := err.Error(); !strings.Contains(got, "voice exploded") {
		t.Fatalf("expected stderr in error, got %q", got)
	}
}

func TestExecEngineContextCancel(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewExecEngine(helperCommand("hang"), FormatRaw)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	chunks, errs := engine.Synthesize(ctx, Request{Text: "hello"})
	for range chunks {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected error after cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("engine ignored cancellation")
	}
}

func TestNewExecEngineRejectsBadInput(t *testing.T) {
	if _, err := NewExecEngine("", FormatRaw); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecEngine("piper", "mp3"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := NewExecEngine("piper 'unterminated", FormatRaw); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandArgs(t *testing.T) {
	args := []string{"piper", "--model", "{model}", "--config", "{config}"}
	got := expandArgs(args, Request{Model: &voice.Model{Path: filepath.Join("m", "v.onnx")}})
	if got[2] != filepath.Join("m", "v.onnx") || got[4] != filepath.Join("m", "v.onnx")+".json" {
		t.Fatalf("unexpected expansion %v", got)
	}
	withSidecar := expandArgs(args, Request{Model: &voice.Model{Path: "v.onnx", ConfigPath: "custom.json"}})
	if withSidecar[4] != "custom.json" {
		t.Fatalf("expected explicit config path, got %v", withSidecar)
	}
	if args[2] != "{model}" {
		t.Fatal("template mutated")
	}
}

func TestChunkAppendPCM(t *testing.T) {
	pcm, err := Int16Chunk([]int16{1, -1}).AppendPCM(nil)
	if err != nil {
		t.Fatalf("int16: %v", err)
	}
	pcm, err = FloatChunk([]float32{1.5, -1}).AppendPCM(pcm)
	if err != nil {
		t.Fatalf("float: %v", err)
	}
	pcm, err = RawChunk([]byte{0x34, 0x12}).AppendPCM(pcm)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	want := []int16{1, -1, 32767, -32767, 0x1234}
	if len(pcm) != len(want)*2 {
		t.Fatalf("expected %d bytes, got %d", len(want)*2, len(pcm))
	}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(pcm[i*2:])); got != w {
			t.Fatalf("sample %d: got %d want %d", i, got, w)
		}
	}
	if _, err := (Chunk{}).AppendPCM(nil); err == nil {
		t.Fatal("expected error for untagged chunk")
	}
}
