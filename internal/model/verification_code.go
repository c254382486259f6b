package model

// VerificationCode is a one-time code the student must make visible on the
// grade portal before capturing evidence. At most one non-invalidated,
// unused code exists per user.
type VerificationCode struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Code        string `json:"code"`
	Used        int    `json:"used"`
	Invalidated int    `json:"invalidated"`
	Ctime       int64  `json:"ctime"`
	ExpiresAt   int64  `json:"expires_at"`
}
