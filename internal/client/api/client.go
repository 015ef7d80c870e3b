// Package api is the HTTP client for the driveguard backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrInvalidCredentials maps the server's 401 login response.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailInUse maps the server's duplicate-email signup response.
	ErrEmailInUse = errors.New("email is already in use")
)

// User is the public projection returned by login.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// LoginResult carries the bearer token and the user it was issued for.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Report mirrors the server's detection report response.
type Report struct {
	ID         string   `json:"id"`
	FileName   string   `json:"file_name"`
	Behaviors  []string `json:"detected_behaviors"`
	Emotion    string   `json:"emotion"`
	Drowsiness float64  `json:"drowsiness_score"`
	Status     string   `json:"status"`
	S3Location string   `json:"s3_location"`
	CreatedAt  string   `json:"created_at"`
}

// Client talks to the backend. All calls carry a timeout so a dead network
// surfaces as an error instead of a hang.
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		upload:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	resp, err := c.postJSON(ctx, "/api/auth/signup", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		return nil
	}
	return decodeError(resp)
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.postJSON(ctx, "/api/auth/login", body)
	if err != nil {
		return LoginResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, decodeError(resp)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if result.Token == "" {
		return LoginResult{}, errors.New("server returned an empty token")
	}
	return result, nil
}

// Detect uploads the media file at path and returns the parsed report.
func (c *Client) Detect(ctx context.Context, token, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Report{}, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Report{}, fmt.Errorf("read media: %w", err)
	}
	if err := form.Close(); err != nil {
		return Report{}, fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/detect", &buf)
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.upload.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("call detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, decodeError(resp)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

func (c *Client) Reports(ctx context.Context, token string) ([]Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/reports", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var reports []Report
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return reports, nil
}

// ReportMedia fetches a temporary download link for a report's archived clip.
func (c *Client) ReportMedia(ctx context.Context, token, reportID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/reports/"+reportID+"/media", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode media link: %w", err)
	}
	if payload.URL == "" {
		return "", errors.New("server returned an empty media link")
	}
	return payload.URL, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	return resp, nil
}

// decodeError turns a non-2xx response into a typed error where the status
// and body identify a known case, otherwise a generic message.
func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusBadRequest && payload.Error == "Email is already in use":
		return ErrEmailInUse
	case payload.Error != "":
		return errors.New(payload.Error)
	default:
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
}
