package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

const openAIName = "openai"

// OpenAIClient talks to an OpenAI-compatible media API with a caller-supplied
// key per request. Keys are per user, so the client itself holds none.
type OpenAIClient struct {
	baseURL string
	cfg     config.OpenAIConfig
	client  *http.Client
	logger  *zap.Logger
}

// NewOpenAIClient creates the OpenAI media client.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &OpenAIClient{
		baseURL: baseURL,
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", openAIName)),
	}
}

// rawResponse is a successful answer.
type rawResponse struct {
	Body        []byte
	ContentType string
	RequestID   string
}

// do sends one request. Non-2xx answers become *service.ProviderError with
// the body and x-request-id kept for the error normalizer.
func (c *OpenAIClient) do(ctx context.Context, op, apiKey, method, path, contentType string, body io.Reader, timeout time.Duration) (*rawResponse, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domainErrors.NewConfigurationError("OpenAI API key is not configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, service.NewTransportError(openAIName, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.NewTransportError(openAIName, op, err)
	}
	requestID := resp.Header.Get("x-request-id")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := service.NewHTTPError(openAIName, op, resp.StatusCode, respBody)
		pe.RequestID = requestID
		return nil, pe
	}

	c.logger.Debug("OpenAI call completed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("latency", time.Since(start)),
	)
	return &rawResponse{
		Body:        respBody,
		ContentType: resp.Header.Get("Content-Type"),
		RequestID:   requestID,
	}, nil
}

func (c *OpenAIClient) postJSON(ctx context.Context, op, apiKey, path string, payload any, timeout time.Duration) (*rawResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, op, apiKey, http.MethodPost, path, "application/json", bytes.NewReader(body), timeout)
}

// ---- speech ----

type speechPayload struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Speech synthesizes text; the response body is the audio itself.
func (c *OpenAIClient) Speech(ctx context.Context, p valueobject.OpenAISpeech, req service.SpeechRequest) (*service.GeneratedMedia, error) {
	payload := speechPayload{
		Model:          firstNonEmpty(req.Model, p.Model, "gpt-4o-mini-tts"),
		Input:          req.Text,
		Voice:          firstNonEmpty(req.Voice, p.Voice, "alloy"),
		ResponseFormat: firstNonEmpty(p.Format, "mp3"),
		Speed:          p.Speed,
	}
	if req.Speed > 0 {
		payload.Speed = req.Speed
	}
	payload.Speed = valueobject.ClampSpeechSpeed(payload.Speed)

	resp, err := c.postJSON(ctx, "speech", p.APIKey, "/audio/speech", payload, c.cfg.SpeechTimeout)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, service.NewProtocolError(openAIName, "speech", "empty audio response", nil)
	}
	ext, ctype := audioFormat(payload.ResponseFormat)
	return &service.GeneratedMedia{
		Data:        resp.Body,
		Ext:         ext,
		ContentType: ctype,
		Provider:    openAIName,
		Model:       payload.Model,
	}, nil
}

// ---- transcription ----

// Transcribe uploads the clip as multipart form data.
func (c *OpenAIClient) Transcribe(ctx context.Context, p valueobject.OpenAITranscription, req service.TranscriptionRequest) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := firstNonEmpty(req.Filename, "audio.wav")
	if err := writeFilePart(w, "file", filename, firstNonEmpty(req.ContentType, "application/octet-stream"), req.Audio); err != nil {
		return "", err
	}
	_ = w.WriteField("model", firstNonEmpty(p.Model, "whisper-1"))
	if p.Language != "" {
		_ = w.WriteField("language", p.Language)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.do(ctx, "transcription", p.APIKey, http.MethodPost, "/audio/transcriptions", w.FormDataContentType(), &buf, c.cfg.TranscriptionTimeout)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", service.NewProtocolError(openAIName, "transcription", "undecodable transcription response", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// ---- images ----

type imagePayload struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Image generates one picture. The answer carries either base64 data or a
// URL, which is fetched.
func (c *OpenAIClient) Image(ctx context.Context, p valueobject.OpenAIImage, prompt string) (*service.GeneratedMedia, error) {
	payload := imagePayload{
		Model:   firstNonEmpty(p.Model, "gpt-image-1"),
		Prompt:  prompt,
		N:       1,
		Size:    p.Size,
		Quality: p.Quality,
	}
	resp, err := c.postJSON(ctx, "image", p.APIKey, "/images/generations", payload, c.cfg.ImageTimeout)
	if err != nil {
		return nil, err
	}

	var out imageResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, service.NewProtocolError(openAIName, "image", "undecodable image response", err)
	}
	if len(out.Data) == 0 {
		return nil, service.NewProtocolError(openAIName, "image", "image response contained no data", nil)
	}

	var data []byte
	ctype := "image/png"
	switch first := out.Data[0]; {
	case first.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, service.NewProtocolError(openAIName, "image", "invalid base64 image", err)
		}
	case first.URL != "":
		content, err := c.fetch(ctx, "image.fetch", p.APIKey, first.URL, c.cfg.ImageTimeout)
		if err != nil {
			return nil, err
		}
		data = content.Data
		if content.ContentType != "" {
			ctype = content.ContentType
		}
	default:
		return nil, service.NewProtocolError(openAIName, "image", "image response had neither b64_json nor url", nil)
	}

	return &service.GeneratedMedia{
		Data:        data,
		Ext:         imageExtension(ctype),
		ContentType: ctype,
		Provider:    openAIName,
		Model:       payload.Model,
	}, nil
}

// fetch downloads a provider URL. Signed URLs on another host get no key.
func (c *OpenAIClient) fetch(ctx context.Context, op, apiKey, url string, timeout time.Duration) (*service.MediaContent, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if strings.HasPrefix(url, c.baseURL) && apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, service.NewTransportError(openAIName, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.NewTransportError(openAIName, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := service.NewHTTPError(openAIName, op, resp.StatusCode, body)
		pe.RequestID = resp.Header.Get("x-request-id")
		return nil, pe
	}
	return &service.MediaContent{Data: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// ---- video ----

// VideoBackend binds the client to one API key for a video job.
func (c *OpenAIClient) VideoBackend(apiKey string) service.VideoBackend {
	return &openAIVideoBackend{c: c, apiKey: apiKey}
}

type openAIVideoBackend struct {
	c      *OpenAIClient
	apiKey string
}

var _ service.VideoBackend = (*openAIVideoBackend)(nil)

type videoResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Output struct {
		URL string `json:"url"`
	} `json:"output"`
	Error json.RawMessage `json:"error"`
}

func (v videoResponse) job() *service.VideoJob {
	job := &service.VideoJob{
		ID:        v.ID,
		Status:    v.Status,
		OutputURL: firstNonEmpty(v.URL, v.Output.URL),
	}
	if len(v.Error) > 0 && string(v.Error) != "null" {
		job.Error = service.ExtractErrorDetail(v.Error)
	}
	return job
}

// videoShapes are the submission payloads in the order they are tried.
// The first is the full request; each next one drops optional fields.
func videoShapes(sub service.VideoSubmission) []map[string]string {
	full := map[string]string{"model": sub.Model, "prompt": sub.Prompt}
	if sub.Seconds != "" {
		full["seconds"] = sub.Seconds
	}
	if sub.Size != "" {
		full["size"] = sub.Size
	}
	shapes := []map[string]string{full}
	for _, drop := range [][]string{{"size"}, {"seconds"}, {"size", "seconds"}} {
		shape := make(map[string]string, len(full))
		for k, val := range full {
			shape[k] = val
		}
		for _, k := range drop {
			delete(shape, k)
		}
		if !containsShape(shapes, shape) {
			shapes = append(shapes, shape)
		}
	}
	return shapes
}

func containsShape(shapes []map[string]string, shape map[string]string) bool {
	for _, s := range shapes {
		if len(s) != len(shape) {
			continue
		}
		same := true
		for k, v := range s {
			if shape[k] != v {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// Submit creates the job, shrinking the payload on HTTP 400 until one shape
// is accepted. The last 400 is returned when every shape is rejected.
func (b *openAIVideoBackend) Submit(ctx context.Context, sub service.VideoSubmission) (*service.VideoJob, error) {
	var lastErr error
	for i, shape := range videoShapes(sub) {
		resp, err := b.submitShape(ctx, shape, sub.Reference)
		if err == nil {
			var out videoResponse
			if err := json.Unmarshal(resp.Body, &out); err != nil {
				return nil, service.NewProtocolError(openAIName, "video.submit", "undecodable video response", err)
			}
			return out.job(), nil
		}
		if !service.IsHTTPStatus(err, http.StatusBadRequest) {
			return nil, err
		}
		lastErr = err
		b.c.logger.Warn("Video submission rejected, shrinking payload",
			zap.Int("attempt", i+1),
			zap.Int("fields", len(shape)),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (b *openAIVideoBackend) submitShape(ctx context.Context, shape map[string]string, ref *service.MediaContent) (*rawResponse, error) {
	if ref == nil || len(ref.Data) == 0 {
		return b.c.postJSON(ctx, "video.submit", b.apiKey, "/videos", shape, b.c.cfg.VideoTimeout)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, val := range shape {
		_ = w.WriteField(k, val)
	}
	ctype := firstNonEmpty(ref.ContentType, "image/png")
	if err := writeFilePart(w, "input_reference", "reference"+imageExtension(ctype), ctype, ref.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return b.c.do(ctx, "video.submit", b.apiKey, http.MethodPost, "/videos", w.FormDataContentType(), &buf, b.c.cfg.VideoTimeout)
}

// Poll reads the job status.
func (b *openAIVideoBackend) Poll(ctx context.Context, jobID string) (*service.VideoJob, error) {
	resp, err := b.c.do(ctx, "video.poll", b.apiKey, http.MethodGet, "/videos/"+jobID, "", nil, b.c.cfg.VideoTimeout)
	if err != nil {
		return nil, err
	}
	var out videoResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, service.NewProtocolError(openAIName, "video.poll", "undecodable video status", err)
	}
	if out.ID == "" {
		out.ID = jobID
	}
	return out.job(), nil
}

// DownloadContent fetches the finished video by job id.
func (b *openAIVideoBackend) DownloadContent(ctx context.Context, jobID string) (*service.MediaContent, error) {
	resp, err := b.c.do(ctx, "video.content", b.apiKey, http.MethodGet, "/videos/"+jobID+"/content", "", nil, b.c.cfg.VideoTimeout)
	if err != nil {
		return nil, err
	}
	return &service.MediaContent{Data: resp.Body, ContentType: resp.ContentType}, nil
}

// FetchURL downloads a provider-supplied output URL.
func (b *openAIVideoBackend) FetchURL(ctx context.Context, url string) (*service.MediaContent, error) {
	return b.c.fetch(ctx, "video.fetch", b.apiKey, url, b.c.cfg.VideoTimeout)
}

// ---- helpers ----

func writeFilePart(w *multipart.Writer, field, filename, contentType string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write multipart file: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// audioFormat maps a response_format to extension and MIME type.
func audioFormat(format string) (string, string) {
	switch strings.ToLower(format) {
	case "wav":
		return ".wav", "audio/wav"
	case "opus":
		return ".opus", "audio/ogg"
	case "aac":
		return ".aac", "audio/aac"
	case "flac":
		return ".flac", "audio/flac"
	case "pcm":
		return ".pcm", "audio/L16"
	default:
		return ".mp3", "audio/mpeg"
	}
}

func imageExtension(contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".png"
	}
}
