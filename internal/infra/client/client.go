package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4096

// HTTPError 后端返回的非 2xx 响应
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// StatusCode 映射为协议状态码
func (e *HTTPError) StatusCode() ua.StatusCode {
	switch e.Status {
	case http.StatusNotFound:
		return ua.BadNotFound
	case http.StatusBadRequest:
		return ua.BadInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return ua.BadUserAccessDenied
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ua.BadTimeout
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ua.BadServerNotConnected
	}
	return ua.BadUnexpectedError
}

// Client 后端 JSON 接口客户端
type Client struct {
	base string
	http *http.Client
}

// New 创建客户端，timeout 为 0 时不设置整体超时
func New(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Base 后端基础地址
func (c *Client) Base() string {
	return c.base
}

// Do 发送 JSON 请求并解码响应，in 与 out 可为 nil
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Method: method, URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	logrus.Tracef("%s %s -> %d", method, url, resp.StatusCode)
	return nil
}
