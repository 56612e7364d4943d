package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the call core
const (
	// Call attributes
	AttrCallID    = "call.id"
	AttrCallState = "call.state"
	AttrCallVideo = "call.with_video"

	// Adapter attributes
	AttrAdapterName  = "adapter.name"
	AttrAdapterState = "adapter.state"

	// Network attributes
	AttrQualityTier = "network.quality_tier"
	AttrProbeRTT    = "network.probe_rtt_ms"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChannels   = "audio.channels"
	AttrAudioCodec      = "audio.codec"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// CallAttrs creates attributes identifying one call session
func CallAttrs(callID string, withVideo bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCallID, callID),
		attribute.Bool(AttrCallVideo, withVideo),
	}
}

// AdapterAttrs creates attributes for adapter state reporting
func AdapterAttrs(name, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAdapterName, name),
		attribute.String(AttrAdapterState, state),
	}
}

// AudioAttrs creates attributes for audio stream parameters
func AudioAttrs(sampleRate, channels int, codec string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChannels, channels),
		attribute.String(AttrAudioCodec, codec),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
