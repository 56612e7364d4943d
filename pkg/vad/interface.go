package vad

// DetectorInterface is the probability-per-chunk contract shared by the
// Silero ONNX detector, the energy detector and test mocks. The voice
// adapter feeds it normalized mono PCM and derives its speaking flags
// from the returned probabilities.
type DetectorInterface interface {
	// Infer returns the speech probability for one chunk of samples.
	// samples are normalized float32 values in [-1, 1]; the result is in
	// [0, 1] where higher values indicate speech.
	Infer(samples []float32) (float32, error)

	// Reset clears internal state. Call when starting a new audio stream.
	Reset() error

	// Destroy releases detector resources. The detector must not be used
	// afterwards.
	Destroy() error
}
