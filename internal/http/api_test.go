package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"driveguard/internal/detect"
	"driveguard/internal/repository/sqlite"
	"driveguard/internal/service"
	"driveguard/internal/storage"
	"driveguard/internal/token"
)

// stubStorage records presign and list calls for assertions.
type stubStorage struct {
	objects    []storage.ObjectInfo
	urlBucket  string
	urlKey     string
	listBucket string
	listPrefix string
}

func (s *stubStorage) UploadFile(_ context.Context, bucket, key string, _ io.Reader) (string, error) {
	return "s3://" + bucket + "/" + key, nil
}

func (s *stubStorage) ListObjects(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	s.listBucket = bucket
	s.listPrefix = prefix
	return s.objects, nil
}

func (s *stubStorage) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	s.urlBucket = bucket
	s.urlKey = key
	return "https://signed.example/" + key, nil
}

type testEnv struct {
	router  *gin.Engine
	reports service.ReportService
}

func newTestEnv(t *testing.T, detector *detect.Client, store storage.Service) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(context.Background()))
	reports := sqlite.NewReportRepository(db)
	require.NoError(t, reports.Init(context.Background()))

	tokens, err := token.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	authService := service.NewAuthServiceWithCost(users, tokens, bcrypt.MinCost)
	reportService := service.NewReportService(reports)

	router := gin.New()
	router.Use(gin.Recovery())
	handler := NewHandler(authService, reportService, tokens, detector, nil,
		store, "clips", "driveguard-media", t.TempDir(), nil)
	handler.RegisterRoutes(router)

	return &testEnv{router: router, reports: reportService}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSignupLoginScenario(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "alice", "email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "User registered successfully", decodeBody(t, w)["message"])

	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, "alice", user["username"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "password_hash")

	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeBody(t, w)["error"])
}

func TestSignupValidationAndDuplicate(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "", "email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "All fields are required", decodeBody(t, w)["error"])

	// the rejected signup must not have created a record
	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "alice", "email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "bob", "email": "a@x.com", "password": "secret2"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email is already in use", decodeBody(t, w)["error"])
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "alice", "email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	wrongPassword := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
	unknownEmail := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "nobody@x.com", "password": "secret1"}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/reports", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/reports", nil,
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func loginToken(t *testing.T, env *testEnv) string {
	t.Helper()

	w := env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": "alice", "email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	tok, ok := decodeBody(t, w)["token"].(string)
	require.True(t, ok)
	return tok
}

func TestDetectRoundTrip(t *testing.T) {
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Abnormality": {"detected_behaviors": ["phone_use"]},
			"EmotionalState": {"emotion": "Stressed"},
			"Drowsiness": {"score": 2.5}
		}`))
	}))
	defer model.Close()

	env := newTestEnv(t, detect.NewClient(model.URL, 5*time.Second), nil)
	tok := loginToken(t, env)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/detect", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, []any{"phone_use"}, body["detected_behaviors"])
	assert.Equal(t, "Stressed", body["emotion"])
	assert.InDelta(t, 2.5, body["drowsiness_score"], 0.001)

	// the analysis is persisted in the caller's history
	w2 := env.do(t, http.MethodGet, "/api/reports", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w2.Code)

	var reports []map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "clip.mp4", reports[0]["file_name"])
}

func TestMeReturnsProjection(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	tok := loginToken(t, env)

	w := env.do(t, http.MethodGet, "/api/me", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)

	user, ok := decodeBody(t, w)["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "a@x.com", user["email"])
}

func signupLogin(t *testing.T, env *testEnv, username, email string) (token, userID string) {
	t.Helper()

	w := env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"username": username, "email": email, "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	token, ok := body["token"].(string)
	require.True(t, ok)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	userID, ok = user["id"].(string)
	require.True(t, ok)
	return token, userID
}

func TestReportMediaPresignedLink(t *testing.T) {
	store := &stubStorage{}
	env := newTestEnv(t, nil, store)
	tok, userID := signupLogin(t, env, "alice", "a@x.com")

	report, err := env.reports.CreateReport(context.Background(), userID, "clip.mp4", "",
		[]string{"yawning"}, "Calm", 1.2)
	require.NoError(t, err)
	key := "driveguard-media/" + userID + "/" + report.ID + "/clip.mp4"
	require.NoError(t, env.reports.MarkArchived(context.Background(), report.ID, "s3://clips/"+key))

	w := env.do(t, http.MethodGet, "/api/reports/"+report.ID+"/media", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "https://signed.example/"+key, body["url"])
	assert.Equal(t, "clips", store.urlBucket)
	assert.Equal(t, key, store.urlKey)
}

func TestReportMediaHiddenWhenUnavailable(t *testing.T) {
	store := &stubStorage{}
	env := newTestEnv(t, nil, store)
	tok, userID := signupLogin(t, env, "alice", "a@x.com")

	// not archived yet
	report, err := env.reports.CreateReport(context.Background(), userID, "clip.mp4", "", nil, "", 0)
	require.NoError(t, err)
	w := env.do(t, http.MethodGet, "/api/reports/"+report.ID+"/media", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Media not archived", decodeBody(t, w)["error"])

	// unknown id
	w = env.do(t, http.MethodGet, "/api/reports/nope/media", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Report not found", decodeBody(t, w)["error"])

	// another user's archived report looks absent too
	bobToken, _ := signupLogin(t, env, "bob", "b@x.com")
	other, err := env.reports.CreateReport(context.Background(), userID, "other.mp4", "", nil, "", 0)
	require.NoError(t, err)
	require.NoError(t, env.reports.MarkArchived(context.Background(), other.ID,
		"s3://clips/driveguard-media/"+userID+"/"+other.ID+"/other.mp4"))

	w = env.do(t, http.MethodGet, "/api/reports/"+other.ID+"/media", nil,
		map[string]string{"Authorization": "Bearer " + bobToken})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Report not found", decodeBody(t, w)["error"])
}

func TestReportMediaWithoutStorageConfigured(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	tok, _ := signupLogin(t, env, "alice", "a@x.com")

	w := env.do(t, http.MethodGet, "/api/reports/whatever/media", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Archive storage not configured", decodeBody(t, w)["error"])
}

func TestArchivedObjectsScopedToCaller(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStorage{objects: []storage.ObjectInfo{
		{Key: "driveguard-media/u-1/r-1/clip.mp4", Size: 42, LastModified: &now},
	}}
	env := newTestEnv(t, nil, store)
	tok, userID := signupLogin(t, env, "alice", "a@x.com")

	w := env.do(t, http.MethodGet, "/api/archive/objects", nil,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)

	var objects []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &objects))
	require.Len(t, objects, 1)
	assert.Equal(t, "driveguard-media/u-1/r-1/clip.mp4", objects[0]["key"])
	assert.InDelta(t, 42, objects[0]["size"], 0.001)

	assert.Equal(t, "clips", store.listBucket)
	assert.Equal(t, "driveguard-media/"+userID, store.listPrefix)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSaveMediaRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(nil, nil, nil, nil, nil, nil, "", "", dir, nil)

	src := io.MultiReader(strings.NewReader("partial bytes"), brokenReader{})
	_, err := h.saveMedia("clip.mp4", src)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
