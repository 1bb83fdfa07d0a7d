package remote

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
	"strconv"
	"strings"
	"time"

	"github.com/five82/rebbit/internal/board"
)

// Ensure Client implements board.Store at compile time.
var _ board.Store = (*Client)(nil)

// Client talks to the Rebbit posts HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultBaseURL   = "http://localhost:8080/api"
	defaultUserAgent = "rebbit/0.1"
	defaultTimeout   = 5 * time.Second
	maxErrorBody     = 512
)

// NewClient builds a Client for the API rooted at baseURL. A zero timeout
// uses the default.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// LoadAll fetches the full collection.
func (c *Client) LoadAll(ctx context.Context) ([]board.Post, error) {
	var posts []board.Post
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "posts"), nil, &posts); err != nil {
		return nil, classify("load", err)
	}
	return normalisePosts(posts), nil
}

// Create persists a new post.
func (c *Client) Create(ctx context.Context, post board.Post) (board.Post, error) {
	var saved board.Post
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "posts"), post, &saved); err != nil {
		return board.Post{}, classify("create", err)
	}
	return normalisePost(saved), nil
}

// Update sends a partial title/content update.
func (c *Client) Update(ctx context.Context, id string, patch board.PostPatch) (board.Post, error) {
	var saved board.Post
	if err := c.do(ctx, http.MethodPut, c.endpoint(nil, "posts", id), patch, &saved); err != nil {
		return board.Post{}, classify("update", err)
	}
	return normalisePost(saved), nil
}

// Delete removes a post. A 404 is treated as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, c.endpoint(nil, "posts", id), nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// AppendComment adds a comment under postID.
func (c *Client) AppendComment(ctx context.Context, postID string, comment board.Comment) (board.Comment, error) {
	var saved board.Comment
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "posts", postID, "comments"), comment, &saved); err != nil {
		return board.Comment{}, classify("comment", err)
	}
	return saved, nil
}

// Vote applies a signed delta to a post's score.
func (c *Client) Vote(ctx context.Context, postID string, delta int) (board.Post, error) {
	values := url.Values{}
	values.Set("value", strconv.Itoa(delta))
	var saved board.Post
	if err := c.do(ctx, http.MethodPatch, c.endpoint(values, "posts", postID, "vote"), nil, &saved); err != nil {
		return board.Post{}, classify("vote", err)
	}
	return normalisePost(saved), nil
}

// Search asks the server for posts matching query.
func (c *Client) Search(ctx context.Context, query string) ([]board.Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	values := url.Values{}
	values.Set("query", query)
	var posts []board.Post
	if err := c.do(ctx, http.MethodGet, c.endpoint(values, "posts", "search"), nil, &posts); err != nil {
		return nil, classify("search", err)
	}
	return normalisePosts(posts), nil
}

// UploadAsset posts data as a multipart file and returns the stored reference,
// resolved against the server origin when relative.
func (c *Client) UploadAsset(ctx context.Context, data []byte, contentType string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="upload`+extensionFor(contentType)+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := form.CreatePart(header)
	if err == nil {
		_, err = part.Write(data)
	}
	if err == nil {
		err = form.Close()
	}
	if err != nil {
		return "", board.WriteFailed("upload", fmt.Errorf("encode multipart: %w", err))
	}

	reqURL := c.endpoint(nil, "images", "upload")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &body)
	if err != nil {
		return "", board.WriteFailed("upload", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	raw, respType, err := c.send(req)
	if err != nil {
		return "", classify("upload", err)
	}
	ref, err := parseReference(raw, respType)
	if err != nil {
		return "", board.WriteFailed("upload", err)
	}
	return c.resolveReference(ref), nil
}

func (c *Client) endpoint(query url.Values, segments ...string) *url.URL {
	u := c.baseURL.JoinPath(segments...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method string, reqURL *url.URL, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, _, err := c.send(req)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	// Callers that expect a value never accept a bare 2xx.
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("decode response: empty body")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send executes req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, string, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, "", &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: msg}
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *Client) resolveReference(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	origin := &url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host}
	return origin.ResolveReference(parsed).String()
}

func parseReference(raw []byte, contentType string) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", errors.New("upload response is empty")
	}
	if strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
		var asString string
		if err := json.Unmarshal([]byte(trimmed), &asString); err == nil && asString != "" {
			return asString, nil
		}
		var asObject struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(trimmed), &asObject); err == nil && asObject.URL != "" {
			return asObject.URL, nil
		}
		return "", fmt.Errorf("upload response has no url: %q", trimmed)
	}
	return trimmed, nil
}

func normalisePost(p board.Post) board.Post {
	if p.Comments == nil {
		p.Comments = []board.Comment{}
	}
	for i := range p.Comments {
		if p.Comments[i].PostID == "" {
			p.Comments[i].PostID = p.ID
		}
	}
	return p
}

func normalisePosts(posts []board.Post) []board.Post {
	for i := range posts {
		posts[i] = normalisePost(posts[i])
	}
	return posts
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
