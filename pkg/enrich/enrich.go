package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/types"
)

// DefaultURLColumns は入力テーブルの標準的なURL列です。
var DefaultURLColumns = []string{"url1", "url2"}

// Extractor は、URLからページの3項目を抽出する機能のインターフェースです。
// *extract.Extractor はこのインターフェースを満たします。
type Extractor interface {
	Extract(ctx context.Context, url string) (types.ScrapedFields, error)
}

// Enricher は各行のURL列をスクレイピングし、派生列を追加します。
type Enricher struct {
	extractor Extractor
	notifier  notify.Notifier
	observe   func(time.Duration)
}

// Option は Enricher の設定を行うための関数型です。
type Option func(*Enricher)

// WithNotifier は抽出失敗の通知先を設定します。
func WithNotifier(n notify.Notifier) Option {
	return func(e *Enricher) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithScrapeObserver は1回の抽出ごとの所要時間を受け取る関数を設定します。
func WithScrapeObserver(f func(time.Duration)) Option {
	return func(e *Enricher) {
		e.observe = f
	}
}

// New は新しい Enricher を生成します。
func New(extractor Extractor, opts ...Option) (*Enricher, error) {
	if extractor == nil {
		return nil, fmt.Errorf("enrich.New: Extractor cannot be nil")
	}
	e := &Enricher{
		extractor: extractor,
		notifier:  notify.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DerivedColumns は ordinal 番目のURL列から作られる3つの列名を返します。
func DerivedColumns(ordinal int) (title, img, lead string) {
	return fmt.Sprintf("title%d", ordinal), fmt.Sprintf("img%d", ordinal), fmt.Sprintf("lead%d", ordinal)
}

// Enrich は rows を順に処理し、urlColumns の各列について title{N}, img{N}, lead{N} を書き込みます。
// N は urlColumns 内での1始まりの位置です。列が無い、または空の場合も3列は空文字列で必ず設定されます。
// 抽出の失敗は通知のみで、処理は止めません。rows はその場で更新され、そのまま返されます。
// 同名の列が既に存在する場合は上書きします。
func (e *Enricher) Enrich(ctx context.Context, rows []*types.Row, urlColumns []string) []*types.Row {
	for i, row := range rows {
		for n, col := range urlColumns {
			titleKey, imgKey, leadKey := DerivedColumns(n + 1)

			var fields types.ScrapedFields
			if url := row.Get(col); url != "" {
				fields = e.scrape(ctx, i+1, url)
			}

			row.Set(titleKey, fields.Title)
			row.Set(imgKey, fields.ImageRef)
			row.Set(leadKey, fields.Lead)
		}
	}
	return rows
}

func (e *Enricher) scrape(ctx context.Context, rowNum int, url string) types.ScrapedFields {
	start := time.Now()
	fields, err := e.extractor.Extract(ctx, url)
	if e.observe != nil {
		e.observe(time.Since(start))
	}

	if err != nil {
		e.notifier.Warn(ctx, notify.Warning{
			Row:   rowNum,
			Stage: notify.StageScrape,
			Err:   err,
		})
		return types.ScrapedFields{}
	}
	return fields
}
