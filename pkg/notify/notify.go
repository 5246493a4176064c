package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Stage は回復可能な失敗が起きた処理段階です。
type Stage string

const (
	StageScrape  Stage = "scrape"
	StageImage   Stage = "image"
	StageRender  Stage = "render"
	StageCopy    Stage = "copy"
	StageWrite   Stage = "write"
	StageArchive Stage = "archive"
	StagePreview Stage = "preview"
)

// Warning は1行単位の、処理全体を止めない失敗の通知です。
type Warning struct {
	// Row は1始まりの行番号です。行に紐付かない場合は0です。
	Row     int
	Package string
	Stage   Stage
	Err     error
}

func (w Warning) Error() string {
	if w.Package != "" {
		return fmt.Sprintf("[%s] 行%d (パッケージ %s): %v", w.Stage, w.Row, w.Package, w.Err)
	}
	return fmt.Sprintf("[%s] 行%d: %v", w.Stage, w.Row, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// Notifier は回復可能な警告の通知先です。配送方法は実装に委ねます。
type Notifier interface {
	Warn(ctx context.Context, w Warning)
}

// NotifierFunc は関数を Notifier として扱うためのアダプターです。
type NotifierFunc func(ctx context.Context, w Warning)

func (f NotifierFunc) Warn(ctx context.Context, w Warning) {
	f(ctx, w)
}

// Discard はすべての警告を捨てる Notifier です。
var Discard Notifier = NotifierFunc(func(context.Context, Warning) {})

// ----------------------------------------------------------------------
// slog による通知
// ----------------------------------------------------------------------

// LogNotifier は警告を slog の Warn レベルで出力します。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier は LogNotifier を生成します。logger が nil の場合は slog.Default() を使います。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Warn(ctx context.Context, w Warning) {
	n.logger.WarnContext(ctx, "処理をスキップしました",
		slog.Int("row", w.Row),
		slog.String("package", w.Package),
		slog.String("stage", string(w.Stage)),
		slog.Any("error", w.Err),
	)
}

// ----------------------------------------------------------------------
// 集計
// ----------------------------------------------------------------------

// Collector は受け取った警告を順番に保持します。最終サマリーとテストで使います。
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
}

func (c *Collector) Warn(_ context.Context, w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, w)
}

// Warnings は受け取った警告のコピーを返します。
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Count は指定段階の警告数を返します。
func (c *Collector) Count(stage Stage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.warnings {
		if w.Stage == stage {
			n++
		}
	}
	return n
}

// Len は警告の総数を返します。
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}

// Multi は複数の Notifier に同じ警告を順に配送します。nil は無視します。
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, w Warning) {
		for _, n := range notifiers {
			if n != nil {
				n.Warn(ctx, w)
			}
		}
	})
}
