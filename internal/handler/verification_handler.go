package handler

import (
	"fmt"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/pkg/errcode"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/response"
	"github.com/edurank/gradeproof/internal/service"
)

const (
	maxScreenshotBytes = 15 << 20
	maxVideoBytes      = 200 << 20
)

type VerificationHandler struct {
	codes        *service.CodeService
	verification *service.VerificationService
}

func NewVerificationHandler(codes *service.CodeService, verification *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{codes: codes, verification: verification}
}

func (h *VerificationHandler) IssueCode(c *gin.Context) {
	item, err := h.codes.Issue(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":       item.Code,
		"expires_at": item.ExpiresAt,
	})
}

func (h *VerificationHandler) SubmitScreenshot(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "invalid multipart form")
		return
	}
	files := form.File["screenshots"]
	if len(files) == 0 {
		files = form.File["screenshot"]
	}
	uploads, closers, err := openUploads(files, maxScreenshotBytes)
	if err != nil {
		handleError(c, err)
		return
	}
	defer closeAll(closers)

	job, err := h.verification.SubmitScreenshot(c.Request.Context(), getUserID(c), c.PostForm("code"), uploads)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Accepted(c, jobAccepted(job))
}

func (h *VerificationHandler) SubmitVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "video file is required")
		return
	}
	uploads, closers, err := openUploads([]*multipart.FileHeader{fileHeader}, maxVideoBytes)
	if err != nil {
		handleError(c, err)
		return
	}
	defer closeAll(closers)

	job, err := h.verification.SubmitVideo(c.Request.Context(), getUserID(c), c.PostForm("code"), uploads[0])
	if err != nil {
		handleError(c, err)
		return
	}
	response.Accepted(c, jobAccepted(job))
}

func (h *VerificationHandler) Status(c *gin.Context) {
	job, err := h.verification.Status(c.Request.Context(), getUserID(c))
	if err != nil {
		if appErr.IsNotFound(err) {
			response.Error(c, errcode.ErrJobNotFound, "no verification job")
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"job_id":                job.ID,
		"verification_type":     job.VerificationType,
		"status":                job.Status,
		"current_step":          job.CurrentStep,
		"trust_score":           job.TrustScore,
		"tampering_probability": job.TamperingProbability,
		"extracted_grades":      job.ExtractedGrades,
		"issues":                job.Issues,
		"score_breakdown":       job.ScoreBreakdown,
		"message":               job.Message,
		"updated_at":            job.Mtime,
	})
}

func jobAccepted(job *model.VerificationJob) gin.H {
	return gin.H{"job_id": job.ID, "status": job.Status}
}

func openUploads(files []*multipart.FileHeader, maxBytes int64) ([]service.Upload, []multipart.File, error) {
	uploads := make([]service.Upload, 0, len(files))
	closers := make([]multipart.File, 0, len(files))
	for _, header := range files {
		if header.Size <= 0 || header.Size > maxBytes {
			closeAll(closers)
			return nil, nil, fmt.Errorf("file %s size out of bounds: %w", header.Filename, appErr.ErrInvalid)
		}
		file, err := header.Open()
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("open upload: %w", appErr.ErrInvalid)
		}
		closers = append(closers, file)
		uploads = append(uploads, service.Upload{
			Name:   header.Filename,
			Reader: file,
			Size:   header.Size,
		})
	}
	return uploads, closers, nil
}

func closeAll(files []multipart.File) {
	for _, file := range files {
		_ = file.Close()
	}
}
