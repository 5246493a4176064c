package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shouni/go-mail-packager/internal/config"
	"github.com/shouni/go-mail-packager/pkg/archive"
	"github.com/shouni/go-mail-packager/pkg/client"
	"github.com/shouni/go-mail-packager/pkg/enrich"
	"github.com/shouni/go-mail-packager/pkg/extract"
	"github.com/shouni/go-mail-packager/pkg/feed"
	"github.com/shouni/go-mail-packager/pkg/imageref"
	"github.com/shouni/go-mail-packager/pkg/metrics"
	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/render"
	"github.com/shouni/go-mail-packager/pkg/table"
	"github.com/shouni/go-mail-packager/pkg/types"
)

const (
	// AggregateArchive はすべてのパッケージをまとめたアーカイブのファイル名です。
	AggregateArchive = render.AggregateArchive
	// PreviewDir はプレビュー用の作業ディレクトリ名です。
	PreviewDir = "preview"
	// PreviewFile はプレビューHTMLの出力ファイル名です。
	PreviewFile = "preview.html"
)

// Summary は1回の実行結果です。
type Summary struct {
	RunID     string
	Requested int
	Produced  int
	Archives  []string
	Aggregate string
	Warnings  []notify.Warning
}

// ----------------------------------------------------------------------
// 設定とコンストラクタ
// ----------------------------------------------------------------------

// Option は Pipeline の設定を行うための関数型です。
type Option func(*Pipeline)

// WithFetcher はページと画像の取得に使う Fetcher を差し替えます。主にテスト用です。
func WithFetcher(f client.Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcherOverride = f
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline は、テーブルの読み込みからパッケージのアーカイブ化までの1回の実行を表します。
// 読み込んだテンプレートなどの状態はこの値の中だけに保持されます。
type Pipeline struct {
	cfg    *config.Config
	runID  string
	logger *slog.Logger

	fetcherOverride client.Fetcher
	client          *client.Client
	extractor       *extract.Extractor
	resolver        *imageref.Resolver
	enricher        *enrich.Enricher

	collector *notify.Collector
	recorder  *metrics.Recorder
	notifier  notify.Notifier

	tempDirs []string
}

// New は設定から Pipeline を組み立てます。
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline.New: Config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		runID:     uuid.NewString(),
		logger:    slog.Default(),
		collector: &notify.Collector{},
		recorder:  metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("run_id", p.runID))

	p.client = client.New(cfg.HTTPTimeout(), client.WithFetcher(p.fetcherOverride))

	var err error
	if p.extractor, err = extract.NewExtractor(p.client); err != nil {
		return nil, fmt.Errorf("Extractorの初期化エラー: %w", err)
	}
	if p.resolver, err = imageref.NewResolver(p.client); err != nil {
		return nil, fmt.Errorf("Resolverの初期化エラー: %w", err)
	}

	p.notifier = notify.Multi(notify.NewLogNotifier(p.logger), p.collector, p.recorder)
	p.enricher, err = enrich.New(p.extractor,
		enrich.WithNotifier(p.notifier),
		enrich.WithScrapeObserver(p.recorder.ObserveScrape),
	)
	if err != nil {
		return nil, fmt.Errorf("Enricherの初期化エラー: %w", err)
	}
	return p, nil
}

// RunID は実行ごとに一意な識別子を返します。
func (p *Pipeline) RunID() string {
	return p.runID
}

// Warnings はこれまでに通知された警告を返します。
func (p *Pipeline) Warnings() []notify.Warning {
	return p.collector.Warnings()
}

// Metrics はこの実行のメトリクスを返します。
func (p *Pipeline) Metrics() *metrics.Recorder {
	return p.recorder
}

// Close は実行中に作成した一時ディレクトリを削除し、設定されていればメトリクスを書き出します。
func (p *Pipeline) Close() error {
	var errs []error
	for _, dir := range p.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	p.tempDirs = nil

	if p.cfg.MetricsFile != "" {
		if err := p.recorder.WriteTextfile(p.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		} else {
			p.logger.Debug("メトリクスを書き出しました", slog.String("path", p.cfg.MetricsFile))
		}
	}
	return errors.Join(errs...)
}

// ----------------------------------------------------------------------
// 入力
// ----------------------------------------------------------------------

// ReadTable は設定された入力テーブルを読み込みます。形式エラーは実行全体のエラーです。
func (p *Pipeline) ReadTable() (*table.Table, error) {
	if p.cfg.Input == "" {
		return nil, fmt.Errorf("入力テーブルが指定されていません (--input)")
	}
	f, err := os.Open(p.cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("入力テーブル(%s)を開けませんでした: %w", p.cfg.Input, err)
	}
	defer f.Close()

	t, err := table.Read(f)
	if err != nil {
		return nil, fmt.Errorf("入力テーブル(%s)の読み込みエラー: %w", p.cfg.Input, err)
	}
	p.logger.Info("入力テーブルを読み込みました", slog.String("path", p.cfg.Input), slog.Int("rows", len(t.Rows)))
	return t, nil
}

// LoadTemplate は設定されたテンプレート (zip またはディレクトリ) を読み込みます。
// zip は一時ディレクトリに展開され、Close で削除されます。
func (p *Pipeline) LoadTemplate() (*render.Template, error) {
	if p.cfg.Template == "" {
		return nil, fmt.Errorf("テンプレートが指定されていません (--template)")
	}

	info, err := os.Stat(p.cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("テンプレート(%s)を開けませんでした: %w", p.cfg.Template, err)
	}

	var tpl *render.Template
	if info.IsDir() {
		tpl, err = render.LoadTemplateDir(p.cfg.Template)
	} else {
		dir, mkErr := os.MkdirTemp("", "template_")
		if mkErr != nil {
			return nil, fmt.Errorf("テンプレート用一時ディレクトリの作成に失敗しました: %w", mkErr)
		}
		p.tempDirs = append(p.tempDirs, dir)
		tpl, err = render.LoadTemplateFile(p.cfg.Template, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("テンプレート(%s)の読み込みエラー: %w", p.cfg.Template, err)
	}
	p.logger.Info("テンプレートを読み込みました", slog.String("path", p.cfg.Template))
	return tpl, nil
}

// ----------------------------------------------------------------------
// 各処理
// ----------------------------------------------------------------------

// Enrich は rows をスクレイピング結果で補完します。
func (p *Pipeline) Enrich(ctx context.Context, rows []*types.Row) []*types.Row {
	p.logger.Info("スクレイピングを開始します", slog.Int("rows", len(rows)), slog.Any("url_columns", p.cfg.URLColumns))
	return p.enricher.Enrich(ctx, rows, p.cfg.URLColumns)
}

// IsEnriched は、ヘッダーがすべてのURL列の派生列を既に含むかどうかを返します。
func (p *Pipeline) IsEnriched(header []string) bool {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	for n := range p.cfg.URLColumns {
		title, img, lead := enrich.DerivedColumns(n + 1)
		for _, key := range []string{title, img, lead} {
			if _, ok := present[key]; !ok {
				return false
			}
		}
	}
	return true
}

// EnrichTable は入力テーブルを読み込んで補完し、w にセミコロン区切りで書き出します。
func (p *Pipeline) EnrichTable(ctx context.Context, w io.Writer) (*Summary, error) {
	t, err := p.ReadTable()
	if err != nil {
		return nil, err
	}
	p.recorder.AddRows(len(t.Rows))

	rows := p.Enrich(ctx, t.Rows)
	if err := table.Write(w, rows); err != nil {
		return nil, err
	}
	return p.summary(len(rows), nil, ""), nil
}

// Run は入力テーブルの全行からパッケージを作成し、全体のアーカイブをまとめます。
// 入力形式のエラー以外は警告として通知され、実行は最後まで続きます。
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	t, err := p.ReadTable()
	if err != nil {
		return nil, err
	}
	tpl, err := p.LoadTemplate()
	if err != nil {
		return nil, err
	}
	p.recorder.AddRows(len(t.Rows))

	rows := t.Rows
	if p.IsEnriched(t.Header) {
		p.logger.Info("入力テーブルは補完済みのため、スクレイピングを省略します")
	} else {
		rows = p.Enrich(ctx, rows)
	}

	renderer, err := render.NewPackageRenderer(p.resolver, p.cfg.OutputDir,
		render.WithNotifier(p.notifier),
		render.WithTextPart(p.cfg.TextPart),
		render.WithPackageObserver(func(id, archivePath string) {
			p.recorder.IncPackages()
			p.logger.Info("パッケージを生成しました", slog.String("package", id), slog.String("archive", archivePath))
		}),
	)
	if err != nil {
		return nil, err
	}

	archives := renderer.RenderAll(ctx, rows, tpl, p.cfg.NamingColumn, p.cfg.ImageColumns)

	aggregate := ""
	if len(archives) > 0 {
		aggregate = filepath.Join(p.cfg.OutputDir, AggregateArchive)
		// 以前の実行の残りを含めないよう、この実行で作成したパッケージだけをまとめる
		if err := archive.CreateSelected(renderer.PackagesRoot(), aggregate, renderer.Produced()); err != nil {
			p.notifier.Warn(ctx, notify.Warning{Stage: notify.StageArchive, Err: err})
			aggregate = ""
		}
	}

	s := p.summary(len(rows), archives, aggregate)
	p.logger.Info("パッケージの生成が完了しました",
		slog.Int("requested", s.Requested),
		slog.Int("produced", s.Produced),
		slog.Int("warnings", len(s.Warnings)),
	)
	return s, nil
}

// Preview は最初の行から自己完結したプレビューHTMLを作成し、出力ディレクトリに書き出します。
// 入力テーブルが補完済みでない場合は、最初の行だけをスクレイピングします。
func (p *Pipeline) Preview(ctx context.Context) (html, path string, err error) {
	t, err := p.ReadTable()
	if err != nil {
		return "", "", err
	}
	tpl, err := p.LoadTemplate()
	if err != nil {
		return "", "", err
	}

	rows := t.Rows[:1]
	if !p.IsEnriched(t.Header) {
		rows = p.Enrich(ctx, []*types.Row{t.Rows[0].Clone()})
	}

	renderer, err := render.NewPreviewRenderer(p.resolver, filepath.Join(p.cfg.OutputDir, PreviewDir),
		render.WithNotifier(p.notifier),
	)
	if err != nil {
		return "", "", err
	}

	html, err = renderer.RenderPreview(ctx, rows, tpl, p.cfg.ImageColumns)
	if err != nil {
		return "", "", err
	}

	path = filepath.Join(p.cfg.OutputDir, PreviewFile)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", "", fmt.Errorf("プレビュー(%s)の書き込みに失敗しました: %w", path, err)
	}
	p.logger.Info("プレビューを生成しました", slog.String("path", path))
	return html, path, nil
}

// Seed は設定されたフィードの記事リンクから入力テーブルを作り、w に書き出します。
// 1行あたり per-row 件のURL列を持ちます。書き出した行数を返します。
func (p *Pipeline) Seed(ctx context.Context, w io.Writer) (int, error) {
	if p.cfg.Feed == "" {
		return 0, fmt.Errorf("フィードURLが指定されていません (--feed)")
	}
	parser, err := feed.NewParser(p.client)
	if err != nil {
		return 0, err
	}

	parsed, err := parser.FetchAndParse(ctx, p.cfg.Feed)
	if err != nil {
		return 0, fmt.Errorf("フィード解析パイプラインの実行エラー: %w", err)
	}

	links := feed.FeedLinks(parsed)
	rows := feed.SeedRows(links, feed.URLColumns(p.cfg.PerRow))
	if len(rows) == 0 {
		return 0, fmt.Errorf("フィード(%s)に記事リンクがありません", p.cfg.Feed)
	}
	if err := table.Write(w, rows); err != nil {
		return 0, err
	}
	p.logger.Info("入力テーブルを生成しました",
		slog.String("feed", parsed.Title),
		slog.Int("links", len(links)),
		slog.Int("rows", len(rows)),
	)
	return len(rows), nil
}

func (p *Pipeline) summary(requested int, archives []string, aggregate string) *Summary {
	if archives == nil {
		archives = []string{}
	}
	return &Summary{
		RunID:     p.runID,
		Requested: requested,
		Produced:  len(archives),
		Archives:  archives,
		Aggregate: aggregate,
		Warnings:  p.collector.Warnings(),
	}
}
