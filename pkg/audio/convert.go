package audio

import "encoding/binary"

// Int16ToBytes converts int16 samples to little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is dropped.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}

// BytesToFloat32 converts little-endian 16-bit PCM bytes to normalized
// float32 samples in [-1, 1], the input format VAD detectors expect.
func BytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// FrameBytes returns the byte length of a mono 16-bit PCM frame of the
// given duration.
func FrameBytes(sampleRate, durationMs int) int {
	return sampleRate * durationMs / 1000 * 2
}
