package avatar

// ErrorCode classifies session failures.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeAuthenticationFailed
	ErrCodeQuotaExceeded
	ErrCodeConnectFailed
	ErrCodeNetworkError
	ErrCodeVendorError
)

// SessionError is a classified avatar-session failure. Terminal errors
// mean the session will not recover on its own; the orchestrator maps
// those to audio-only fallback rather than ending the call.
type SessionError struct {
	Code     ErrorCode
	Message  string
	Terminal bool
	Err      error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
