package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-mail-packager/internal/config"
	"github.com/shouni/go-mail-packager/internal/logger"
	"github.com/shouni/go-mail-packager/internal/pipeline"
)

// --- グローバル定数 ---

const (
	appName = "mail-packager"
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec int    // --timeout 1リクエストあたりのタイムアウト
	OutputDir  string // --output-dir 出力ディレクトリ
}

var Flags AppFlags // アプリケーション固有フラグにアクセスするためのグローバル変数

// --- 初期化とロジック (clibaseへのコールバックとして利用) ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.Short = "Webページを取り込み、行ごとのメールパッケージを生成するツール"
	rootCmd.Long = `セミコロン区切りのテーブルの各行について、URL列のページからタイトル・画像・リード文を取得し、
HTMLテンプレートをレンダリングして、画像とアセットを同梱した自己完結のzipパッケージを生成します。`

	rootCmd.PersistentFlags().IntVar(
		&Flags.TimeoutSec,
		"timeout",
		config.DefaultTimeoutSec,
		"HTTPリクエスト1回あたりのタイムアウト時間（秒）。リトライは行いません",
	)
	rootCmd.PersistentFlags().StringVar(
		&Flags.OutputDir,
		"output-dir",
		config.DefaultOutputDir,
		"パッケージとプレビューの出力ディレクトリ",
	)
	// 値は config.Config.LogJSON から読む (MAILPACK_LOG_JSON も有効)
	rootCmd.PersistentFlags().Bool(
		"log-json",
		false,
		"ログをJSON形式で出力します",
	)
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.Init(os.Stderr, clibase.Flags.Verbose, cfg.LogJSON)

	if clibase.Flags.Verbose {
		slog.Debug("HTTPクライアントのタイムアウトを設定しました", slog.Int("timeout_sec", Flags.TimeoutSec))
	}
	return nil
}

// loadConfig は、コマンドのフラグと MAILPACK_* 環境変数から設定を読み込みます。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// newPipeline は、コマンドの設定から Pipeline を組み立てます (DIの代わり)。
func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("パイプラインの初期化エラー: %w", err)
	}
	return p, nil
}

// closePipeline は Pipeline を閉じ、失敗した場合はログに残します。
func closePipeline(p *pipeline.Pipeline) {
	if err := p.Close(); err != nil {
		slog.Error("後片付けに失敗しました", slog.Any("error", err))
	}
}

// writeOutput は path ("" または "-" は標準出力) に write の結果を書き出します。
// ファイルのクローズに失敗した場合もエラーを返します。
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("出力ファイル(%s)の作成に失敗しました: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("出力ファイル(%s)のクローズに失敗しました: %w", path, cerr)
		}
	}()
	return write(f)
}

// --- 共通フラグ ---

func addInputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "入力テーブル (セミコロン区切り、UTF-8) のパス")
}

func addTemplateFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("template", "t", "", "テンプレートのzip (ルートに index.html を含む) またはディレクトリ")
}

func addURLColumnsFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("url-columns", config.DefaultURLColumns, "スクレイピング対象のURL列 (n番目の列から titleN/imgN/leadN を生成)")
}

func addImageColumnsFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("image-columns", config.DefaultImageColumns, "パッケージに画像を取り込む列")
}

func addMetricsFlag(cmd *cobra.Command) {
	cmd.Flags().String("metrics-file", "", "実行メトリクスを Prometheus textfile 形式で書き出すパス")
}

// --- エントリポイント ---

// Execute は、rootCmd を実行するメイン関数です。clibaseのExecuteを使用する。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		enrichCmd,
		buildCmd,
		previewCmd,
		seedCmd,
	)
}
