package invoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPRenderer converts HTML to PDF through a Gotenberg compatible service:
// the page is posted as index.html to /forms/chromium/convert/html.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPRenderer{
		endpoint: strings.TrimRight(baseURL, "/") + "/forms/chromium/convert/html",
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, html []byte) (Payload, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("files", "index.html")
	if err != nil {
		return Payload{}, err
	}
	if _, err := part.Write(html); err != nil {
		return Payload{}, err
	}
	if err := form.Close(); err != nil {
		return Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &body)
	if err != nil {
		return Payload{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("pdf renderer: %w", err)
	}
	defer resp.Body.Close()

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return Payload{}, fmt.Errorf("pdf renderer: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("pdf renderer: status %d: %s", resp.StatusCode, strings.TrimSpace(string(pdf[:min(len(pdf), 200)])))
	}
	return Payload{ContentType: "application/pdf", Body: pdf}, nil
}
