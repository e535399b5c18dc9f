package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/storage"
)

// Renderer turns a prompt into image bytes. ext is the file extension of the
// returned image, including the dot.
type Renderer interface {
	Render(ctx context.Context, prompt string) (data []byte, ext string, err error)
}

// HTTPRenderer calls a hosted text-to-image endpoint that answers with
// {"images":[{"url":...}]} and downloads the first image.
type HTTPRenderer struct {
	apiKey     string
	endpoint   string
	imageSize  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *core.Retrier
	logger     *slog.Logger
}

type RendererOption func(*HTTPRenderer)

func WithRendererRateLimit(requestsPerMinute, burst int) RendererOption {
	return func(r *HTTPRenderer) {
		r.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithRendererTimeout(timeout time.Duration) RendererOption {
	return func(r *HTTPRenderer) {
		r.httpClient = &http.Client{Timeout: timeout}
	}
}

func WithRendererRetrier(retrier *core.Retrier) RendererOption {
	return func(r *HTTPRenderer) {
		r.retrier = retrier
	}
}

func NewHTTPRenderer(apiKey, endpoint, imageSize string, opts ...RendererOption) *HTTPRenderer {
	r := &HTTPRenderer{
		apiKey:     apiKey,
		endpoint:   endpoint,
		imageSize:  imageSize,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(0.5), 1),
		retrier:    core.NewRetrier(core.DefaultResilienceConfig(), core.IsTransient),
		logger:     slog.Default().With("component", "renderer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type renderRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size,omitempty"`
	NumImages int    `json:"num_images"`
}

type renderResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (r *HTTPRenderer) Render(ctx context.Context, prompt string) ([]byte, string, error) {
	if r.apiKey == "" {
		return nil, "", fmt.Errorf("renderer: %w", core.ErrNoAPIKey)
	}

	var (
		data []byte
		ext  string
	)
	err := r.retrier.ExecuteWithRetry(ctx, "render", func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		imageURL, err := r.requestImage(ctx, core.Truncate(prompt, MaxPromptChars))
		if err != nil {
			return err
		}
		data, err = r.download(ctx, imageURL)
		if err != nil {
			return err
		}
		ext = extensionOf(imageURL)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, ext, nil
}

func (r *HTTPRenderer) requestImage(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(renderRequest{Prompt: prompt, ImageSize: r.imageSize, NumImages: 1})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+r.apiKey)

	respBody, err := r.do(req)
	if err != nil {
		return "", err
	}

	var resp renderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding render response: %w", err)
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return "", errors.New("render response contained no image url")
	}
	return resp.Images[0].URL, nil
}

func (r *HTTPRenderer) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	return r.do(req)
}

// do executes req, classifying network errors, 429 and 5xx as transient.
func (r *HTTPRenderer) do(req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Host
	start := time.Now()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, &core.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransientError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	r.logger.Debug("HTTP response received",
		"op", op,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"body_size", len(body))

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &core.TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	default:
		return nil, fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, snippet(body))
	}
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".png"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return ext
	default:
		return ".png"
	}
}

func snippet(b []byte) string {
	s := string(b)
	if t := core.Truncate(s, 300); t != s {
		return t + "..."
	}
	return s
}

// RenderStage renders an item's prompt and stores the image in the object
// store. The stored handle is the completion evidence.
type RenderStage struct {
	renderer Renderer
	objects  storage.ObjectStore
}

func NewRenderStage(renderer Renderer, objects storage.ObjectStore) *RenderStage {
	return &RenderStage{renderer: renderer, objects: objects}
}

func (s *RenderStage) Name() string  { return StageRender }
func (s *RenderStage) Field() string { return story.FieldArtifactReference }

func (s *RenderStage) Produce(ctx context.Context, item story.Item, parent story.Unit) (string, error) {
	prompt := item.Get(story.FieldRenderedPrompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: %s has no rendered prompt", core.ErrMissingInput, item.ID())
	}

	data, ext, err := s.renderer.Render(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", item.ID(), err)
	}

	handle, err := s.objects.Write(ctx,
		storage.ImageObjectName(item.ItemIndex, ext),
		data,
		storage.ImageDir(item.CollectionID, item.UnitIndex))
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", item.ID(), err)
	}
	return handle, nil
}
