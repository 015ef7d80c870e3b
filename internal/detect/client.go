// Package detect calls the external driver-behavior model endpoint.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Report is the model endpoint's analysis of a single clip. Every section is
// optional; the endpoint omits what it could not score.
type Report struct {
	Abnormality *struct {
		DetectedBehaviors []string `json:"detected_behaviors"`
	} `json:"Abnormality,omitempty"`
	EmotionalState *struct {
		Emotion string `json:"emotion"`
	} `json:"EmotionalState,omitempty"`
	Drowsiness *struct {
		Score float64 `json:"score"`
	} `json:"Drowsiness,omitempty"`
}

// Behaviors returns the detected behavior list, empty when absent.
func (r Report) Behaviors() []string {
	if r.Abnormality == nil {
		return nil
	}
	return r.Abnormality.DetectedBehaviors
}

// Emotion returns the detected emotional state, empty when absent.
func (r Report) Emotion() string {
	if r.EmotionalState == nil {
		return ""
	}
	return r.EmotionalState.Emotion
}

// DrowsinessScore returns the drowsiness score, zero when absent.
func (r Report) DrowsinessScore() float64 {
	if r.Drowsiness == nil {
		return 0
	}
	return r.Drowsiness.Score
}

// Client posts media files to the model's predict endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Predict streams the file as a multipart form to the model endpoint and
// decodes the returned report.
func (c *Client) Predict(ctx context.Context, fileName string, file io.Reader) (Report, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return Report{}, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("call model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Report{}, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, body)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode model response: %w", err)
	}
	return report, nil
}
