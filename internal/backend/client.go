// Package backend wraps the HTTP API of the detection backend
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/liliang-cn/aidentify/internal/domain"
	"go.uber.org/zap"
)

const (
	historyPath = "/api/chat/history"
	chatPath    = "/api/chat/"
	deletePath  = "/api/chat/delete"
)

// Client talks to the detection backend
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
	logger       *zap.Logger
}

// NewClient creates a backend client.
// Uploads get their own, longer timeout to cover large media and slow inference.
func NewClient(baseURL string, timeout, uploadTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
		logger:       logger,
	}
}

// AnalyzeRequest is one file submitted for detection
type AnalyzeRequest struct {
	File   *domain.Attachment
	Email  string
	ChatID string
}

// EndpointFor returns the analyze path for a media type
func EndpointFor(mt domain.MediaType) string {
	switch mt {
	case domain.MediaVideo:
		return "/api/video/analyze"
	case domain.MediaAudio:
		return "/api/audio/analyze"
	default:
		return "/api/image/analyze"
	}
}

// History returns all chats of a user
func (c *Client) History(ctx context.Context, email string) ([]domain.RawChat, error) {
	q := url.Values{"email": {email}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+historyPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var chats []domain.RawChat
	if err := c.doJSON(c.httpClient, req, &chats); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return chats, nil
}

// Chat returns a single chat by id
func (c *Client) Chat(ctx context.Context, chatID string) (*domain.RawChat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+chatPath+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, err
	}

	var chat domain.RawChat
	if err := c.doJSON(c.httpClient, req, &chat); err != nil {
		return nil, fmt.Errorf("fetch chat %s: %w", chatID, err)
	}
	return &chat, nil
}

// DeleteChat removes a chat of a user. Any 2xx reply counts as success.
func (c *Client) DeleteChat(ctx context.Context, email, chatID string) error {
	q := url.Values{"email": {email}, "chatId": {chatID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+deletePath+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	if err := c.doJSON(c.httpClient, req, nil); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}

// Analyze uploads a file to the endpoint matching its media type
func (c *Client) Analyze(ctx context.Context, in *AnalyzeRequest) (*domain.AnalyzeResponse, error) {
	if in == nil || in.File == nil {
		return nil, fmt.Errorf("analyze: %w", domain.ErrNothingStaged)
	}

	body, contentType, err := encodeMultipart(in)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	endpoint := EndpointFor(in.File.MediaType())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("Uploading media",
		zap.String("endpoint", endpoint),
		zap.String("file", in.File.Name),
		zap.Int64("size", in.File.Size),
		zap.String("chat_id", in.ChatID),
	)

	var resp domain.AnalyzeResponse
	if err := c.doJSON(c.uploadClient, req, &resp); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", in.File.Name, err)
	}
	return &resp, nil
}

func encodeMultipart(in *AnalyzeRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(in.File.Name)))
	h.Set("Content-Type", in.File.MIMEType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.File.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"mime_type", in.File.MIMEType},
		{"email", in.Email},
	}
	if in.ChatID != "" {
		fields = append(fields, [2]string{"chat_id", in.ChatID})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) doJSON(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnreachableError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Detail: parseDetail(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// parseDetail extracts the FastAPI style {"detail": ...} message
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}

// ErrUnreachable matches any error where the backend could not be reached or timed out
var ErrUnreachable = errors.New("backend unreachable")

// UnreachableError wraps a transport failure
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string { return fmt.Sprintf("backend unreachable: %v", e.Err) }

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// StatusError is a non-2xx reply of the backend
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Classify maps a client error onto the user-facing failure taxonomy
func Classify(err error) *domain.SubmitError {
	var se *domain.SubmitError
	if errors.As(err, &se) {
		return se
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrUnreachable):
		return &domain.SubmitError{Kind: domain.FailureConnectivity, Err: err}
	case errors.As(err, &statusErr):
		return &domain.SubmitError{
			Kind:   domain.FailureServer,
			Status: statusErr.Status,
			Detail: statusErr.Detail,
			Err:    err,
		}
	default:
		return &domain.SubmitError{Kind: domain.FailureUnknown, Err: err}
	}
}
