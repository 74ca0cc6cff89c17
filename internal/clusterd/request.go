package clusterd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// service is the request layer shared by every group of clusterd operations.
type service struct {
	client *Client
}

func (s service) request(ctx context.Context, method, path string, query url.Values, body any, follow bool) ([]byte, error) {
	c := s.client
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse clusterd path %q: %w", path, err)
	}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	target := c.base.ResolveReference(ref)

	reader, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build clusterd request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := *c.http
	if !follow {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	c.logger.Debug("clusterd request", "method", method, "path", target.Path)
	resp, err := hc.Do(req)
	if err != nil {
		return nil, s.transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, s.transportError(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, responseError(resp, data)
	}
	return data, nil
}

func (s service) transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := fmt.Sprintf("clusterd unreachable at %s: %v", s.client.endpoint, err)
	if s.client.socketPath != "" && errors.Is(err, fs.ErrNotExist) {
		msg = socketNotFoundMessage
	}
	return &Error{Kind: KindTransportUnavailable, Err: ErrServiceUnavailable, Message: msg, cause: err}
}

func responseError(resp *http.Response, data []byte) error {
	text := ""
	if gjson.ValidBytes(data) {
		text = gjson.GetBytes(data, "error").String()
	} else {
		text = strings.TrimSpace(string(data))
	}
	kind, sentinel := Classify(text)
	if sentinel == nil {
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Message: text}
	}
	return &Error{Kind: kind, Err: sentinel, Message: text, StatusCode: resp.StatusCode}
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode clusterd request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

func (s service) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return s.request(ctx, http.MethodGet, path, query, nil, true)
}

func (s service) head(ctx context.Context, path string) ([]byte, error) {
	return s.request(ctx, http.MethodHead, path, nil, nil, false)
}

func (s service) post(ctx context.Context, path string, body any) ([]byte, error) {
	return s.request(ctx, http.MethodPost, path, nil, body, true)
}

func (s service) patch(ctx context.Context, path string, body any) ([]byte, error) {
	return s.request(ctx, http.MethodPatch, path, nil, body, true)
}

func (s service) put(ctx context.Context, path string, body any) ([]byte, error) {
	return s.request(ctx, http.MethodPut, path, nil, body, true)
}

func (s service) delete(ctx context.Context, path string) ([]byte, error) {
	return s.request(ctx, http.MethodDelete, path, nil, nil, true)
}

func (s service) options(ctx context.Context, path string) ([]byte, error) {
	return s.request(ctx, http.MethodOptions, path, nil, nil, true)
}

// metadata decodes the envelope's metadata field into out.
func metadata(data []byte, out any) error {
	raw := gjson.GetBytes(data, "metadata")
	if !raw.Exists() || raw.Type == gjson.Null {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.Raw), out); err != nil {
		return fmt.Errorf("decode clusterd metadata: %w", err)
	}
	return nil
}
