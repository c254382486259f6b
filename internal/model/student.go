package model

type Student struct {
	UserID     string `json:"user_id"`
	StudentID  string `json:"student_id"`
	IsVerified int    `json:"is_verified"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

// ReportedGrade is a grade the student typed in themselves, the value the
// pipeline cross-checks OCR evidence against.
type ReportedGrade struct {
	UserID     string   `json:"user_id"`
	ModuleID   string   `json:"module_id"`
	Exam       *float64 `json:"exam"`
	Continuous *float64 `json:"continuous"`
	Ctime      int64    `json:"ctime"`
	Mtime      int64    `json:"mtime"`
}
