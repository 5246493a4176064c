package feed

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
	textUtils "github.com/shouni/go-utils/text"
)

// Fetcher は、フィードの生バイト配列を取得する機能のインターフェースです。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Parser は RSS/Atom フィードを取得して解析します。
type Parser struct {
	client Fetcher
}

// NewParser は新しい Parser インスタンスを初期化し、依存関係を注入します。
func NewParser(client Fetcher) (*Parser, error) {
	if client == nil {
		return nil, fmt.Errorf("feed.NewParser: Fetcher cannot be nil")
	}
	return &Parser{client: client}, nil
}

// FetchAndParse は指定されたURLからフィードを取得し、パースします。
func (p *Parser) FetchAndParse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := p.client.FetchBytes(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得失敗 (URL: %s): %w", feedURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパース失敗 (URL: %s): %w", feedURL, err)
	}
	return feed, nil
}

// FeedLinks はフィードの記事リンクを、空と重複を除いて掲載順で返します。
func FeedLinks(feed *gofeed.Feed) []string {
	if feed == nil || len(feed.Items) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{}, len(feed.Items))
	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		// フィードによってはリンクの前後に改行やインデントが入る
		link := textUtils.NormalizeText(item.Link)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		urls = append(urls, link)
	}
	return urls
}
