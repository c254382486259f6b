package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edurank/gradeproof/internal/middleware"
	"github.com/edurank/gradeproof/internal/pkg/response"
)

type RouterDeps struct {
	Verification   *VerificationHandler
	Students       *StudentHandler
	JWTSecret      []byte
	SubmitCooldown time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/verification/code", deps.Verification.IssueCode)
	authGroup.GET("/verification/status", deps.Verification.Status)
	authGroup.GET("/student/profile", deps.Students.Profile)
	authGroup.PUT("/student/grades", deps.Students.ReportGrades)

	submitGroup := authGroup.Group("")
	if deps.SubmitCooldown > 0 {
		submitGroup.Use(middleware.RateLimit(deps.SubmitCooldown))
	}
	submitGroup.POST("/verification/screenshot", deps.Verification.SubmitScreenshot)
	submitGroup.POST("/verification/video", deps.Verification.SubmitVideo)
}
