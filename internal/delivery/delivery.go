// Package delivery forwards outbound messages and media downloads to the
// bridge's HTTP API. Failures are reported in the Result, never as errors.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8080"
	DefaultTimeout = 30 * time.Second
)

var (
	ErrMissingAuth = errors.New("Missing Authorization header for bridge request.")
	ErrNotBearer   = errors.New("Bridge Authorization header must be a Bearer token.")
)

// Result is the outcome of a bridge call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"file_path,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// Bearer validates an Authorization header value and returns it trimmed.
func Bearer(header string) (string, error) {
	v := strings.TrimSpace(header)
	if v == "" {
		return "", ErrMissingAuth
	}
	if len(v) < len("bearer ") || !strings.EqualFold(v[:len("bearer ")], "bearer ") {
		return "", ErrNotBearer
	}
	return v, nil
}

// Client talks to the bridge.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// New creates a Client for baseURL.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log.Named("delivery"),
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
}

type downloadRequest struct {
	MessageID string `json:"message_id"`
	ChatJID   string `json:"chat_jid"`
}

type bridgeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// SendMessage sends a text message. recipient is a phone number or a JID.
func (c *Client) SendMessage(ctx context.Context, auth, recipient, message string) Result {
	if recipient == "" {
		return failure("Recipient must be provided")
	}
	return c.send(ctx, auth, sendRequest{Recipient: recipient, Message: message})
}

// SendFile sends a local file as media.
func (c *Client) SendFile(ctx context.Context, auth, recipient, mediaPath string) Result {
	if r, ok := checkMedia(recipient, mediaPath); !ok {
		return r
	}
	return c.send(ctx, auth, sendRequest{Recipient: recipient, MediaPath: mediaPath})
}

// SendAudio sends a voice message. The file must already be Opus in an .ogg
// container; no conversion happens here.
func (c *Client) SendAudio(ctx context.Context, auth, recipient, mediaPath string) Result {
	if r, ok := checkMedia(recipient, mediaPath); !ok {
		return r
	}
	if !strings.EqualFold(filepath.Ext(mediaPath), ".ogg") {
		return failure("Audio must be an Opus .ogg file, got %s; convert it first or use send_file", filepath.Base(mediaPath))
	}
	return c.send(ctx, auth, sendRequest{Recipient: recipient, MediaPath: mediaPath})
}

// Download asks the bridge to fetch the media of a message and returns the
// local path in Result.Path.
func (c *Client) Download(ctx context.Context, auth, messageID, chatJID string) Result {
	if messageID == "" || chatJID == "" {
		return failure("Failed to download media: message_id and chat_jid must be provided")
	}
	resp, r, ok := c.post(ctx, auth, "/api/download", downloadRequest{MessageID: messageID, ChatJID: chatJID})
	if !ok {
		c.log.Warn("download failed", zap.String("message_id", messageID), zap.String("reason", r.Message))
		return failure("Failed to download media: %s", r.Message)
	}
	if !resp.Success {
		return failure("Failed to download media: %s", orDefault(resp.Message, "Unknown error"))
	}
	return Result{Success: true, Message: "Media downloaded successfully", Path: resp.Path}
}

func (c *Client) send(ctx context.Context, auth string, req sendRequest) Result {
	resp, r, ok := c.post(ctx, auth, "/api/send", req)
	if !ok {
		return r
	}
	return Result{Success: resp.Success, Message: orDefault(resp.Message, "Unknown response")}
}

// post returns the decoded 200 response, or a failed Result and false.
func (c *Client) post(ctx context.Context, auth, path string, payload any) (bridgeResponse, Result, bool) {
	header, err := Bearer(auth)
	if err != nil {
		return bridgeResponse{}, failure("%s", err.Error()), false
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return bridgeResponse{}, failure("Unexpected error: %v", err), false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return bridgeResponse{}, failure("Request error: %v", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)

	res, err := c.http.Do(req)
	if err != nil {
		return bridgeResponse{}, failure("Request error: %v", err), false
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return bridgeResponse{}, failure("Request error: %v", err), false
	}
	if res.StatusCode != http.StatusOK {
		c.log.Debug("bridge returned non-200", zap.String("path", path), zap.Int("status", res.StatusCode))
		return bridgeResponse{}, failure("Error: HTTP %d - %s", res.StatusCode, strings.TrimSpace(string(raw))), false
	}
	var out bridgeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return bridgeResponse{}, failure("Error parsing response: %s", strings.TrimSpace(string(raw))), false
	}
	return out, Result{}, true
}

func checkMedia(recipient, mediaPath string) (Result, bool) {
	if recipient == "" {
		return failure("Recipient must be provided"), false
	}
	if mediaPath == "" {
		return failure("Media path must be provided"), false
	}
	info, err := os.Stat(mediaPath)
	if err != nil || !info.Mode().IsRegular() {
		return failure("Media file not found: %s", mediaPath), false
	}
	return Result{}, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
