package client

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// ----------------------------------------------------------------------
// 定数とインターフェース
// ----------------------------------------------------------------------

const (
	// DefaultHTTPTimeout は、1回のリクエストに許されるデフォルトの時間です。
	DefaultHTTPTimeout = 10 * time.Second
)

// Fetcher は、URL の内容を生のバイト配列として取得する機能のインターフェースです。
// *httpkit.Client はこのインターフェースを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Client は Fetcher をラップし、1リクエストごとのタイムアウトを保証します。
// ページ取得と画像取得はどちらもこの Client を経由し、リトライは行いません。
type Client struct {
	fetcher Fetcher
	timeout time.Duration
}

// ----------------------------------------------------------------------
// 設定とコンストラクタ
// ----------------------------------------------------------------------

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithFetcher は内部で使用する Fetcher を差し替えます。主にテスト用です。
func WithFetcher(fetcher Fetcher) ClientOption {
	return func(c *Client) {
		if fetcher != nil {
			c.fetcher = fetcher
		}
	}
}

// New は新しいClientを初期化します。
// timeout が0以下の場合は DefaultHTTPTimeout を使用します。
func New(timeout time.Duration, options ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		// 1回の試行のみ。タイムアウトや非2xxは呼び出し側で回復可能な失敗として扱う
		fetcher: httpkit.New(timeout, httpkit.WithMaxRetries(0)),
		timeout: timeout,
	}

	for _, opt := range options {
		opt(c)
	}
	return c
}

// Timeout は1リクエストあたりのタイムアウトを返します。
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// FetchBytes は URL からコンテンツを1回だけ取得し、生のバイト配列として返します。
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("URL(%s)の取得に失敗しました: %w", url, err)
	}
	return body, nil
}
