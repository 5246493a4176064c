package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shouni/go-mail-packager/pkg/notify"
)

// Recorder は1回のパイプライン実行のカウンターを保持します。
// 実行ごとに専用の Registry を持つため、グローバルな登録状態を汚しません。
type Recorder struct {
	registry *prometheus.Registry

	RowsTotal      prometheus.Counter
	PackagesTotal  prometheus.Counter
	WarningsTotal  *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
}

// NewRecorder は新しい Recorder を生成し、すべてのメトリクスを登録します。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailpack_rows_total",
			Help: "The total number of input rows processed",
		}),
		PackagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailpack_packages_total",
			Help: "The total number of packages written and archived",
		}),
		WarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailpack_warnings_total",
			Help: "The total number of recoverable failures",
		}, []string{"stage"}), // e.g., 'scrape', 'image', 'render'
		ScrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailpack_scrape_duration_seconds",
			Help:    "Duration of single page extractions",
			Buckets: prometheus.DefBuckets,
		}),
	}
	r.registry.MustRegister(r.RowsTotal, r.PackagesTotal, r.WarningsTotal, r.ScrapeDuration)
	return r
}

// Registry はメトリクスが登録された Registry を返します。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) AddRows(n int) {
	r.RowsTotal.Add(float64(n))
}

func (r *Recorder) IncPackages() {
	r.PackagesTotal.Inc()
}

func (r *Recorder) ObserveScrape(d time.Duration) {
	r.ScrapeDuration.Observe(d.Seconds())
}

// Warn は notify.Notifier を満たし、段階ごとの警告数を数えます。
func (r *Recorder) Warn(_ context.Context, w notify.Warning) {
	r.WarningsTotal.WithLabelValues(string(w.Stage)).Inc()
}

// WriteTextfile はメトリクスを node_exporter の textfile 形式で path に書き出します。
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("メトリクスファイル(%s)の書き込みに失敗しました: %w", path, err)
	}
	return nil
}
