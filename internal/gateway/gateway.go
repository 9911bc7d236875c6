package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/wa-relay/internal/model"
)

// errBodyLimit caps how much of a platform error body is kept.
const errBodyLimit = 64 << 10

// GenericErrorBody is returned when the platform gave no structured error.
var GenericErrorBody = json.RawMessage(`{"error":"gateway request failed"}`)

// ErrMediaNotFound means the platform answered a media lookup without a URL.
var ErrMediaNotFound = errors.New("media url not found")

// Error is a failed platform call. Body is the platform's JSON error verbatim
// when it sent one, GenericErrorBody otherwise.
type Error struct {
	Op     string
	Status int // 0 when the request never got an answer
	Body   json.RawMessage
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	Timeout     time.Duration // 0 keeps the transport default
	Client      *http.Client
}

// Client is the only component that talks to the platform API.
type Client struct {
	base   string
	token  string
	client *http.Client
}

func New(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if v := strings.Trim(cfg.APIVersion, "/"); v != "" {
		base += "/" + v
	}
	return &Client{base: base, token: cfg.AccessToken, client: client}
}

// Send posts an already composed payload to the messages endpoint of routingKey
// and returns the platform response body untouched.
func (c *Client) Send(ctx context.Context, routingKey string, payload []byte) (json.RawMessage, error) {
	endpoint := c.base + "/" + url.PathEscape(routingKey) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: "send", Body: GenericErrorBody, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "send")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// FetchMediaURL resolves a media id to its short-lived download URL.
func (c *Client) FetchMediaURL(ctx context.Context, mediaID string) (string, error) {
	endpoint := c.base + "/" + url.PathEscape(mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &Error{Op: "media", Body: GenericErrorBody, Err: err}
	}

	body, err := c.do(req, "media")
	if err != nil {
		return "", err
	}

	var info model.MediaInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", &Error{Op: "media", Status: http.StatusOK, Body: GenericErrorBody, Err: fmt.Errorf("decode media info: %w", err)}
	}
	if info.URL == "" {
		return "", ErrMediaNotFound
	}
	return info.URL, nil
}

// MediaStream is an open download. The caller must Close Body.
type MediaStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// StreamMedia opens an authenticated download of rawURL without reading the body.
func (c *Client) StreamMedia(ctx context.Context, rawURL string) (*MediaStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Op: "download", Body: GenericErrorBody, Err: err}
	}
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "download", Body: GenericErrorBody, Err: err}
	}
	if res.StatusCode/100 != 2 {
		defer res.Body.Close()
		return nil, errorFromResponse("download", res)
	}

	ct := res.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &MediaStream{Body: res.Body, ContentType: ct, ContentLength: res.ContentLength}, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// do runs an authenticated request and returns the full (small) JSON body.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Body: GenericErrorBody, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, errorFromResponse(op, res)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &Error{Op: op, Status: res.StatusCode, Body: GenericErrorBody, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func errorFromResponse(op string, res *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, errBodyLimit))
	body := GenericErrorBody
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && json.Valid(trimmed) {
		body = json.RawMessage(trimmed)
	}
	return &Error{Op: op, Status: res.StatusCode, Body: body}
}
