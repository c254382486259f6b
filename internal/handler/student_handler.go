package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edurank/gradeproof/internal/middleware"
	"github.com/edurank/gradeproof/internal/pkg/errcode"
	"github.com/edurank/gradeproof/internal/pkg/response"
	"github.com/edurank/gradeproof/internal/service"
)

type StudentHandler struct {
	students *service.StudentService
}

func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

func getStudentID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextStudentIDKey)
	studentID, _ := value.(string)
	return studentID
}

func (h *StudentHandler) Profile(c *gin.Context) {
	student, grades, err := h.students.Profile(c.Request.Context(), getUserID(c), getStudentID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id":     student.UserID,
		"student_id":  student.StudentID,
		"is_verified": student.IsVerified == 1,
		"grades":      grades,
	})
}

type reportGradesRequest struct {
	Grades []service.ReportedEntry `json:"grades"`
}

func (h *StudentHandler) ReportGrades(c *gin.Context) {
	var req reportGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	if err := h.students.ReportGrades(c.Request.Context(), getUserID(c), getStudentID(c), req.Grades); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
