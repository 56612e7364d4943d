//go:build vad

// Silero VAD detector backed by onnxruntime_go. Build with the `vad`
// tag and a libonnxruntime shared library on the loader path; without
// the tag the EnergyDetector serves as the default implementation.
package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroStateLen   = 2 * 1 * 128
	sileroContextLen = 64
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment once per process.
// libraryPath may be empty to auto-detect libonnxruntime.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = findRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	runtimeInitialized = true
	return nil
}

// DestroyRuntime tears down the ONNX runtime environment.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

func findRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SileroConfig configures the Silero detector.
type SileroConfig struct {
	// ModelPath is the path to the silero_vad.onnx model file.
	ModelPath string
	// SampleRate of the input audio; 8000 or 16000.
	SampleRate int
}

// SileroDetector runs the Silero VAD model for speech probability.
type SileroDetector struct {
	session *ort.DynamicAdvancedSession
	cfg     SileroConfig

	state [sileroStateLen]float32
	ctx   [sileroContextLen]float32
	// samplesSeen gates context prepending: the first inference has no
	// prior context.
	samplesSeen int

	inputNames  []string
	outputNames []string
}

// NewSileroDetector creates a detector; InitRuntime is called
// automatically if needed.
func NewSileroDetector(cfg SileroConfig) (*SileroDetector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("invalid SampleRate %d: valid values are 8000 and 16000", cfg.SampleRate)
	}

	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	d := &SileroDetector{
		cfg:         cfg,
		inputNames:  []string{"input", "state", "sr"},
		outputNames: []string{"output", "stateN"},
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization level: %w", err)
	}
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, d.inputNames, d.outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	d.session = session
	return d, nil
}

// Infer implements DetectorInterface.
func (d *SileroDetector) Infer(samples []float32) (float32, error) {
	if d == nil || d.session == nil {
		return 0, fmt.Errorf("detector not initialized")
	}

	pcm := samples
	if d.samplesSeen > 0 {
		pcm = append(d.ctx[:], samples...)
	}
	if len(samples) >= sileroContextLen {
		copy(d.ctx[:], samples[len(samples)-sileroContextLen:])
	}
	d.samplesSeen += len(samples)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(pcm))), pcm)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state[:])
	if err != nil {
		return 0, fmt.Errorf("failed to create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(d.cfg.SampleRate)})
	if err != nil {
		return 0, fmt.Errorf("failed to create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return 0, fmt.Errorf("failed to create stateN tensor: %w", err)
	}
	defer stateNTensor.Destroy()

	inputs := []ort.Value{inputTensor, stateTensor, srTensor}
	outputs := []ort.Value{outputTensor, stateNTensor}
	if err := d.session.Run(inputs, outputs); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}

	copy(d.state[:], stateNTensor.GetData())
	out := outputTensor.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("empty output from inference")
	}
	return out[0], nil
}

// Reset implements DetectorInterface.
func (d *SileroDetector) Reset() error {
	for i := range d.state {
		d.state[i] = 0
	}
	for i := range d.ctx {
		d.ctx[i] = 0
	}
	d.samplesSeen = 0
	return nil
}

// Destroy implements DetectorInterface.
func (d *SileroDetector) Destroy() error {
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		d.session = nil
	}
	return nil
}

var _ DetectorInterface = (*SileroDetector)(nil)
