package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"driveguard/internal/archive"
	"driveguard/internal/detect"
	"driveguard/internal/domain"
	"driveguard/internal/repository"
	"driveguard/internal/service"
	"driveguard/internal/storage"
	"driveguard/internal/token"
)

const userIDKey = "userID"

// mediaURLTTL bounds how long a presigned media link stays valid.
const mediaURLTTL = 15 * time.Minute

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth      service.AuthService
	reports   service.ReportService
	tokens    *token.Service
	detector  *detect.Client
	archiver  archive.Manager
	store     storage.Service
	bucket    string
	keyPrefix string
	mediaDir  string
	logger    *logrus.Logger
}

func NewHandler(
	auth service.AuthService,
	reports service.ReportService,
	tokens *token.Service,
	detector *detect.Client,
	archiver archive.Manager,
	store storage.Service,
	bucket string,
	keyPrefix string,
	mediaDir string,
	logger *logrus.Logger,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:      auth,
		reports:   reports,
		tokens:    tokens,
		detector:  detector,
		archiver:  archiver,
		store:     store,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		mediaDir:  mediaDir,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/auth/signup", h.signup)
		api.POST("/auth/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusAccepted, gin.H{"ok": "ok"})
		})

		authed := api.Group("")
		authed.Use(h.requireAuth())
		{
			authed.POST("/detect", h.detect)
			authed.GET("/reports", h.listReports)
			authed.GET("/reports/:id/media", h.reportMedia)
			authed.GET("/archive/objects", h.listArchivedObjects)
			authed.GET("/me", h.me)
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireAuth rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}

		userID, err := h.tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.internalError(c, "decode signup body", err)
		return
	}

	err := h.auth.Signup(c.Request.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
	case errors.Is(err, service.ErrEmailInUse):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is already in use"})
	case err != nil:
		h.internalError(c, "signup", err)
	default:
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.internalError(c, "decode login body", err)
		return
	}

	t, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case err != nil:
		h.internalError(c, "login", err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"token": t,
			"user":  userResponse{ID: user.ID, Email: user.Email, Username: user.Username},
		})
	}
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.auth.GetByID(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.internalError(c, "lookup user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": userResponse{ID: user.ID, Email: user.Email, Username: user.Username},
	})
}

type reportResponse struct {
	ID         string   `json:"id"`
	FileName   string   `json:"file_name"`
	Behaviors  []string `json:"detected_behaviors"`
	Emotion    string   `json:"emotion"`
	Drowsiness float64  `json:"drowsiness_score"`
	Status     string   `json:"status"`
	S3Location string   `json:"s3_location,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func (h *Handler) detect(c *gin.Context) {
	if h.detector == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Detection endpoint not configured"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Media file is required"})
		return
	}
	defer file.Close()

	userID := c.GetString(userIDKey)
	fileName := filepath.Base(header.Filename)

	localPath, err := h.saveMedia(fileName, file)
	if err != nil {
		h.internalError(c, "save media", err)
		return
	}

	media, err := os.Open(localPath)
	if err != nil {
		h.internalError(c, "reopen media", err)
		return
	}
	result, err := h.detector.Predict(c.Request.Context(), fileName, media)
	media.Close()
	if err != nil {
		_ = os.Remove(localPath)
		h.internalError(c, "predict", err)
		return
	}

	// without an archive manager there is no use for the local copy
	if h.archiver == nil {
		_ = os.Remove(localPath)
		localPath = ""
	}

	report, err := h.reports.CreateReport(c.Request.Context(), userID, fileName, localPath,
		result.Behaviors(), result.Emotion(), result.DrowsinessScore())
	if err != nil {
		h.internalError(c, "persist report", err)
		return
	}

	if h.archiver != nil {
		if err := h.archiver.Enqueue(c.Request.Context(), report.ID); err != nil {
			h.logger.Warnf("enqueue archive for report %s: %v", report.ID, err)
		}
	}

	c.JSON(http.StatusOK, reportToResponse(*report))
}

func (h *Handler) listReports(c *gin.Context) {
	reports, err := h.reports.ListReports(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.internalError(c, "list reports", err)
		return
	}

	resp := make([]reportResponse, len(reports))
	for i := range reports {
		resp[i] = reportToResponse(reports[i])
	}
	c.JSON(http.StatusOK, resp)
}

// reportMedia hands out a short-lived presigned URL for a report's archived
// clip. The report must belong to the caller and have finished archiving.
func (h *Handler) reportMedia(c *gin.Context) {
	if h.store == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Archive storage not configured"})
		return
	}

	report, err := h.reports.GetReport(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	case err != nil:
		h.internalError(c, "lookup report", err)
		return
	}

	// existence of other users' reports stays hidden
	if report.UserID != c.GetString(userIDKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if report.Status != domain.ReportStatusArchived || report.S3Location == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media not archived"})
		return
	}

	bucket, key, ok := splitS3Location(report.S3Location)
	if !ok {
		h.internalError(c, "parse media location", fmt.Errorf("malformed location %q", report.S3Location))
		return
	}

	url, err := h.store.GetObjectURL(c.Request.Context(), bucket, key, mediaURLTTL)
	if err != nil {
		h.internalError(c, "presign media", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(mediaURLTTL.Seconds()),
	})
}

type archiveObjectResponse struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified,omitempty"`
}

// listArchivedObjects lists the caller's archived clips straight from the
// bucket, scoped to their key prefix.
func (h *Handler) listArchivedObjects(c *gin.Context) {
	if h.store == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Archive storage not configured"})
		return
	}

	prefix := path.Join(h.keyPrefix, c.GetString(userIDKey))
	objects, err := h.store.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		h.internalError(c, "list archived objects", err)
		return
	}

	resp := make([]archiveObjectResponse, len(objects))
	for i, obj := range objects {
		resp[i] = archiveObjectResponse{Key: obj.Key, Size: obj.Size}
		if obj.LastModified != nil {
			resp[i].LastModified = obj.LastModified.Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// splitS3Location breaks an "s3://bucket/key" location into its parts.
func splitS3Location(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func (h *Handler) saveMedia(fileName string, src io.Reader) (string, error) {
	if err := os.MkdirAll(h.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	localPath := filepath.Join(h.mediaDir, fmt.Sprintf("%s-%s", uuid.NewString(), fileName))
	dst, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(localPath)
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("close media file: %w", err)
	}
	return localPath, nil
}

func reportToResponse(report domain.Report) reportResponse {
	behaviors := report.Behaviors
	if behaviors == nil {
		behaviors = []string{}
	}
	return reportResponse{
		ID:         report.ID,
		FileName:   report.FileName,
		Behaviors:  behaviors,
		Emotion:    report.Emotion,
		Drowsiness: report.Drowsiness,
		Status:     string(report.Status),
		S3Location: report.S3Location,
		CreatedAt:  report.CreatedAt.Format(time.RFC3339),
	}
}

// internalError logs the cause server-side and returns a generic body so
// storage or model failures never leak detail to the client.
func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Errorf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
}
