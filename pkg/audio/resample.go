package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts 16-bit PCM between sample rates and channel
// layouts. The local microphone captures at 16kHz mono while the voice
// room expects 48kHz, so the capture path runs every frame through one
// of these.
type Resampler struct {
	ctx       *astiav.SoftwareResampleContext
	inFrame   *astiav.Frame
	outFrame  *astiav.Frame
	inLayout  astiav.ChannelLayout
	outLayout astiav.ChannelLayout
	inRate    int
	outRate   int
}

// NewResampler creates a resampler between the given rates. Both sides
// are S16; layouts must be mono or stereo.
func NewResampler(inRate, outRate int, inLayout, outLayout astiav.ChannelLayout) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", inRate, outRate)
	}

	r := &Resampler{
		inRate:    inRate,
		outRate:   outRate,
		inLayout:  inLayout,
		outLayout: outLayout,
	}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("failed to allocate resample context")
	}
	r.inFrame = astiav.AllocFrame()
	r.outFrame = astiav.AllocFrame()
	if r.inFrame == nil || r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate frames")
	}
	return r, nil
}

// Free releases the underlying ffmpeg resources. Safe to call twice.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

func channelCount(layout astiav.ChannelLayout) (int, error) {
	switch layout {
	case astiav.ChannelLayoutMono:
		return 1, nil
	case astiav.ChannelLayoutStereo:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported channel layout")
	}
}

// Convert resamples one chunk of S16 PCM.
func (r *Resampler) Convert(input []byte) ([]byte, error) {
	const align = 0

	if len(input) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	inChannels, err := channelCount(r.inLayout)
	if err != nil {
		return nil, err
	}
	bytesPerFrame := 2 * inChannels
	numSamples := len(input) / bytesPerFrame
	if numSamples == 0 {
		return nil, fmt.Errorf("input shorter than one frame")
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(r.inLayout)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	r.outFrame.SetChannelLayout(r.outLayout)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)
	outSamples := numSamples * r.outRate / r.inRate
	if outSamples == 0 {
		outSamples = 1
	}
	r.outFrame.SetNbSamples(outSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate output buffer: %w", err)
	}
	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("making frame writable failed: %w", err)
	}

	// ffmpeg may round the buffer up for alignment; pad with zeros.
	bufSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer size: %w", err)
	}
	buf := input
	if len(input) < bufSize {
		buf = make([]byte, bufSize)
		copy(buf, input)
	}
	if err := r.inFrame.Data().SetBytes(buf[:bufSize], align); err != nil {
		return nil, fmt.Errorf("setting frame data failed: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	out, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("getting output data failed: %w", err)
	}
	return out, nil
}
