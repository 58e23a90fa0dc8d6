// Package embedsvc is the HTTP client for the multimodal embedding service.
package embedsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

const (
	providerName = "service"

	// imageField is fixed by the service's upload handler. imageFilename is
	// sent when the caller attached no upload filename to the context.
	imageField    = "file"
	imageFilename = "upload.jpg"

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 1 << 10
)

// Client calls the embedding service over HTTP.
type Client struct {
	baseURL         string
	textPath        string
	imagePath       string
	healthPath      string
	imageDimensions int
	http            *http.Client
	logger          *zap.Logger
}

// Config holds the client settings.
type Config struct {
	BaseURL    string
	TextPath   string
	ImagePath  string
	HealthPath string
	// ImageDimensions is the required image vector length (default 512).
	ImageDimensions int
	// HTTPClient is shared across calls; it must be safe for concurrent use.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

var (
	_ domain.TextEmbedder  = (*Client)(nil)
	_ domain.ImageEmbedder = (*Client)(nil)
	_ domain.HealthChecker = (*Client)(nil)
)

// NewClient creates an embedding service client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		textPath:        cfg.TextPath,
		imagePath:       cfg.ImagePath,
		healthPath:      cfg.HealthPath,
		imageDimensions: cfg.ImageDimensions,
		http:            cfg.HTTPClient,
		logger:          cfg.Logger,
	}
	if c.textPath == "" {
		c.textPath = "/embed/text"
	}
	if c.imagePath == "" {
		c.imagePath = "/embed/image"
	}
	if c.imageDimensions <= 0 {
		c.imageDimensions = domain.ImageDimensions
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// EmbedText embeds a text query. The vector length is not checked here.
func (c *Client) EmbedText(ctx context.Context, text string) (domain.Vector, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode text request: %w", err)
	}

	start := time.Now()
	vec, err := c.post(ctx, c.textPath, "application/json", body)
	metrics.ObserveEmbedding(providerName, string(domain.ModalityText), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedImage uploads image bytes as a single multipart part and requires the
// result to have exactly the configured image dimensions. The part carries the
// filename from domain.WithUploadFilename, or upload.jpg.
func (c *Client) EmbedImage(ctx context.Context, data []byte, contentType string) (domain.Vector, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyInput
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = domain.DefaultContentType
	}

	filename := domain.UploadFilename(ctx)
	if filename == "" {
		filename = imageFilename
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	start := time.Now()
	vec, err := c.post(ctx, c.imagePath, mw.FormDataContentType(), buf.Bytes())
	if err == nil {
		err = vec.CheckDimensions(c.imageDimensions)
	}
	metrics.ObserveEmbedding(providerName, string(domain.ModalityImage), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// HealthCheck probes the service health endpoint when one is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.healthPath == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.ProviderError{Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) (domain.Vector, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("embedding service unreachable", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.ProviderError{Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrProviderUnavailable, err)
	}
	return decodeEmbedding(raw)
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
