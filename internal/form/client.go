package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.io/infrasutra/portfolio/internal/contact"
)

// Relay submits a contact form somewhere and reports the decoded result.
type Relay interface {
	Submit(ctx context.Context, s contact.Submission) (Response, error)
}

// Response is the relay's HTTP status together with its JSON body.
type Response struct {
	StatusCode int
	Result     contact.Result
}

// Succeeded is true only for a 2xx status carrying ok=true.
func (r Response) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.Result.OK
}

// HTTPRelay posts submissions as JSON to the relay endpoint.
type HTTPRelay struct {
	url    string
	client *http.Client
}

func NewHTTPRelay(url string, client *http.Client) *HTTPRelay {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRelay{url: url, client: client}
}

func (r *HTTPRelay) Submit(ctx context.Context, s contact.Submission) (Response, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return Response{}, fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post to relay: %w", err)
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return out, fmt.Errorf("read relay response: %w", err)
	}
	// A body that is not JSON leaves Result empty, which reads as failure.
	_ = json.Unmarshal(body, &out.Result)
	return out, nil
}
