package domain

// RejectReason is the opaque, stable key reported outward when a callback
// ends in rejection. Internal detail behind a reason stays in logs.
type RejectReason string

const (
	ReasonSessionExpired  RejectReason = "session_expired"
	ReasonCodeInvalid     RejectReason = "code_invalid"
	ReasonVerifyFailed    RejectReason = "verify_failed"
	ReasonUserInvalid     RejectReason = "user_invalid"
	ReasonPreAuthRequired RejectReason = "pre_auth_required"
)

func (r RejectReason) String() string { return string(r) }
