package voice

// ErrorCode classifies voice-channel failures.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	// ErrCodePermissionDenied covers microphone permission failures.
	// Kept distinct from connection errors so the UI can point the user
	// at OS settings instead of showing a generic retry.
	ErrCodePermissionDenied
	ErrCodeConnectFailed
	ErrCodeNetworkError
	ErrCodeRoomError
)

// Error is a classified voice-channel failure. Terminal errors mean the
// retry budget is exhausted and the call must end.
type Error struct {
	Code     ErrorCode
	Message  string
	Terminal bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
