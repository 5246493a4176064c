package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-mail-packager/internal/config"
	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/render"
	"github.com/shouni/go-mail-packager/pkg/table"
)

// ======================================================================
// テスト用ヘルパー
// ======================================================================

// fakeWeb は登録済みURLにだけ応答する Fetcher です。
type fakeWeb map[string]string

func (f fakeWeb) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if body, ok := f[url]; ok {
		return []byte(body), nil
	}
	return nil, errors.New("status 404")
}

const (
	articlePage = `<html><body>
		<h1>Article A</h1>
		<div class="entry-image"><img src="https://cdn.example.com/a.png?w=600"></div>
		<div class="entry-lead">Lead of A</div>
	</body></html>`
	emptyPage = `<html><body><p>nothing here</p></body></html>`
)

func defaultWeb() fakeWeb {
	return fakeWeb{
		"https://example.com/a":               articlePage,
		"https://example.com/empty":           emptyPage,
		"https://cdn.example.com/a.png?w=600": "PNGDATA",
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeTemplateZip(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return writeFile(t, path, buf.String())
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		TimeoutSec:   1,
		OutputDir:    filepath.Join(dir, "out"),
		Input:        writeFile(t, filepath.Join(dir, "input.csv"), "\xEF\xBB\xBFID;url1;url2\n42;https://example.com/a;\n43;https://example.com/empty;\n"),
		Template:     writeTemplateZip(t, filepath.Join(dir, "tpl.zip"), map[string]string{"index.html": `<h1>{{ title1 }}</h1><img src="{{ img1 }}"><p>{{ lead1 }}</p><img src="logo.png">`, "logo.png": "L"}),
		NamingColumn: "ID",
		URLColumns:   []string{"url1", "url2"},
		ImageColumns: []string{"img1", "img2"},
		PerRow:       2,
	}
}

func newPipeline(t *testing.T, cfg *config.Config, web fakeWeb) *Pipeline {
	t.Helper()
	p, err := New(cfg, WithFetcher(web), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// ======================================================================
// テスト関数
// ======================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := newConfig(t)
	cfg.URLColumns = nil
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	cfg := newConfig(t)
	p := newPipeline(t, cfg, defaultWeb())

	s, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, 2, s.Requested)
	assert.Equal(t, 2, s.Produced)
	assert.Equal(t, []string{
		filepath.Join(cfg.OutputDir, "42.zip"),
		filepath.Join(cfg.OutputDir, "43.zip"),
	}, s.Archives)
	assert.Equal(t, filepath.Join(cfg.OutputDir, AggregateArchive), s.Aggregate)
	assert.FileExists(t, s.Aggregate)

	html, err := os.ReadFile(filepath.Join(cfg.OutputDir, render.PackagesDir, "42", render.EntryFile))
	require.NoError(t, err)
	assert.Equal(t, `<h1>Article A</h1><img src="a.png"><p>Lead of A</p><img src="logo.png">`, string(html))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, render.PackagesDir, "42", "a.png"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, render.PackagesDir, "43", "logo.png"))

	// 何も抽出できなかったページは警告になるが、パッケージは作られる
	require.Len(t, s.Warnings, 1)
	assert.Equal(t, notify.StageScrape, s.Warnings[0].Stage)
	assert.Equal(t, 2, s.Warnings[0].Row)

	m := p.Metrics()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RowsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PackagesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WarningsTotal.WithLabelValues("scrape")))
}

func TestRun_AggregateContainsOnlyThisRunsPackages(t *testing.T) {
	cfg := newConfig(t)
	writeFile(t, filepath.Join(cfg.OutputDir, render.PackagesDir, "old", render.EntryFile), "stale")
	p := newPipeline(t, cfg, defaultWeb())

	s, err := p.Run(context.Background())
	require.NoError(t, err)

	r, err := zip.OpenReader(s.Aggregate)
	require.NoError(t, err)
	defer r.Close()

	tops := make(map[string]bool)
	for _, f := range r.File {
		top, _, _ := strings.Cut(f.Name, "/")
		tops[top] = true
	}
	assert.Equal(t, map[string]bool{"42": true, "43": true}, tops, "以前の実行のディレクトリを含めないべきです")
}

func TestRun_AlreadyEnrichedInputSkipsScraping(t *testing.T) {
	cfg := newConfig(t)
	cfg.Input = writeFile(t, filepath.Join(t.TempDir(), "enriched.csv"),
		"ID;url1;url2;title1;img1;lead1;title2;img2;lead2\n1;https://example.com/a;;Cached;;;;;\n")

	// 取得できるURLが無いので、スクレイピングすれば警告が出る
	p := newPipeline(t, cfg, fakeWeb{})
	s, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, s.Produced)
	assert.Empty(t, s.Warnings)
	html, err := os.ReadFile(filepath.Join(cfg.OutputDir, render.PackagesDir, "1", render.EntryFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Cached</h1>")
}

func TestRun_InputFormatErrors(t *testing.T) {
	t.Run("missing_template_entry", func(t *testing.T) {
		cfg := newConfig(t)
		cfg.Template = writeTemplateZip(t, filepath.Join(t.TempDir(), "bad.zip"), map[string]string{"other.html": "x"})

		_, err := newPipeline(t, cfg, defaultWeb()).Run(context.Background())
		assert.ErrorIs(t, err, render.ErrMissingEntry)
	})

	t.Run("header_only_table", func(t *testing.T) {
		cfg := newConfig(t)
		cfg.Input = writeFile(t, filepath.Join(t.TempDir(), "empty.csv"), "ID;url1;url2\n")

		_, err := newPipeline(t, cfg, defaultWeb()).Run(context.Background())
		assert.ErrorIs(t, err, table.ErrEmptyTable)
	})

	t.Run("missing_input", func(t *testing.T) {
		cfg := newConfig(t)
		cfg.Input = ""

		_, err := newPipeline(t, cfg, defaultWeb()).Run(context.Background())
		assert.Error(t, err)
	})
}

func TestRun_TemplateDirectory(t *testing.T) {
	cfg := newConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "{{ ID }}")
	cfg.Template = dir

	s, err := newPipeline(t, cfg, defaultWeb()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Produced)
}

func TestEnrichTable(t *testing.T) {
	cfg := newConfig(t)
	p := newPipeline(t, cfg, defaultWeb())

	var out bytes.Buffer
	s, err := p.EnrichTable(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Requested)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID;url1;url2;title1;img1;lead1;title2;img2;lead2", lines[0])
	assert.Equal(t, "42;https://example.com/a;;Article A;https://cdn.example.com/a.png?w=600;Lead of A;;;", lines[1])
	assert.Equal(t, "43;https://example.com/empty;;;;;;;", lines[2])
}

func TestPreview(t *testing.T) {
	cfg := newConfig(t)
	p := newPipeline(t, cfg, defaultWeb())

	html, path, err := p.Preview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.OutputDir, PreviewFile), path)
	assert.Contains(t, html, "<h1>Article A</h1>")
	assert.Contains(t, html, `<img src="data:image/png;base64,UE5HREFUQQ==">`)
	assert.Contains(t, html, `<img src="data:image/png;base64,TA==">`)
	assert.NotContains(t, html, "43")

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, html, string(written))
}

func TestSeed(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>News</title>
<item><title>A</title><link>https://example.com/a</link></item>
<item><title>B</title><link>https://example.com/b</link></item>
<item><title>C</title><link>https://example.com/c</link></item>
</channel></rss>`

	cfg := newConfig(t)
	cfg.Feed = "https://example.com/feed.xml"
	p := newPipeline(t, cfg, fakeWeb{cfg.Feed: rss})

	var out bytes.Buffer
	n, err := p.Seed(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ID;url1;url2\n1;https://example.com/a;https://example.com/b\n2;https://example.com/c;\n", out.String())

	cfg.Feed = ""
	_, err = p.Seed(context.Background(), &out)
	assert.Error(t, err)
}

func TestClose_WritesMetricsAndRemovesTemplateDir(t *testing.T) {
	cfg := newConfig(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "mailpack.prom")
	p, err := New(cfg, WithFetcher(defaultWeb()), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	tempDirs := append([]string(nil), p.tempDirs...)
	require.NotEmpty(t, tempDirs)

	require.NoError(t, p.Close())

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mailpack_packages_total 2")
	for _, dir := range tempDirs {
		assert.NoDirExists(t, dir)
	}
}
