// Package agent は印刷サーバーのキューをポーリングしてローカルで印刷するエージェントです。
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

var (
	// ErrFileGone はサーバー側のファイルが削除済み (410) の場合に返ります。
	ErrFileGone = errors.New("print file gone")
	// ErrAlreadyClaimed は他の処理が既にジョブを取得済み (409) の場合に返ります。
	ErrAlreadyClaimed = errors.New("job already claimed")
	// ErrJobNotFound はサーバーがジョブを知らない (404) 場合に返ります。
	ErrJobNotFound = errors.New("job not found on server")
)

// contentTypeExtensions は Content-Type から保存用の拡張子を決める表です。
var contentTypeExtensions = []struct {
	contentType string
	ext         string
}{
	{"application/pdf", ".pdf"},
	{"image/png", ".png"},
	{"image/jpeg", ".jpg"},
	{"image/webp", ".webp"},
	{"image/bmp", ".bmp"},
	{"image/gif", ".gif"},
}

// ExtensionForContentType は Content-Type に対応する拡張子を返します。不明なら空文字です。
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	for _, m := range contentTypeExtensions {
		if strings.Contains(ct, m.contentType) {
			return m.ext
		}
	}
	return ""
}

// Client は印刷サーバーの API クライアントです。
type Client struct {
	base            string
	http            *http.Client
	queueTimeout    time.Duration
	downloadTimeout time.Duration
}

// NewClient は Client を作成します。タイムアウトは呼び出しごとに適用します。
func NewClient(base string, queueTimeout, downloadTimeout time.Duration) *Client {
	return &Client{
		base:            strings.TrimRight(base, "/"),
		http:            &http.Client{},
		queueTimeout:    queueTimeout,
		downloadTimeout: downloadTimeout,
	}
}

// FetchQueue は pending ジョブの一覧を取得します。
func (c *Client) FetchQueue(ctx context.Context) ([]*jobs.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queueTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/queue", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch queue", resp)
	}

	var queue []*jobs.Job
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return queue, nil
}

// Download は印刷ファイルを dir に "<jobID><拡張子>" として保存し、そのパスを返します。
func (c *Client) Download(ctx context.Context, job *jobs.Job, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/print-file/"+url.PathEscape(job.ID), nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone:
		return "", fmt.Errorf("job %s: %w", job.ID, ErrFileGone)
	case http.StatusNotFound:
		return "", fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	default:
		return "", statusError("download "+job.ID, resp)
	}

	ext := ExtensionForContentType(resp.Header.Get("Content-Type"))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(job.StoredFileName))
	}
	if ext == "" {
		ext = ".pdf"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(job.ID)+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("download %s: %w", job.ID, err)
	}
	return path, nil
}

// Claim はサーバー側でジョブを printing にします。
func (c *Client) Claim(ctx context.Context, id string) error {
	return c.post(ctx, "/api/queue/"+url.PathEscape(id)+"/claim", nil, "claim "+id)
}

// Done はジョブの完了を通知します。
func (c *Client) Done(ctx context.Context, id string) error {
	return c.post(ctx, "/api/queue/"+url.PathEscape(id)+"/done", nil, "done "+id)
}

// ReportError はジョブの失敗を通知します。
func (c *Client) ReportError(ctx context.Context, id, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	return c.post(ctx, "/api/queue/"+url.PathEscape(id)+"/error", body, "report error "+id)
}

// Ping はハートビートを送信します。
func (c *Client) Ping(ctx context.Context) error {
	return c.post(ctx, "/api/agent/ping", nil, "ping")
}

func (c *Client) post(ctx context.Context, path string, body []byte, op string) error {
	ctx, cancel := context.WithTimeout(ctx, c.queueTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrJobNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrAlreadyClaimed)
	default:
		return statusError(op, resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
