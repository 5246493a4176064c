package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix は環境変数の接頭辞です (例: MAILPACK_OUTPUT_DIR)。
const EnvPrefix = "MAILPACK"

// 設定キー。フラグ名の "-" を "_" に置き換えたものです。
const (
	KeyTimeout      = "timeout"
	KeyOutputDir    = "output_dir"
	KeyLogJSON      = "log_json"
	KeyInput        = "input"
	KeyTemplate     = "template"
	KeyNamingColumn = "naming_column"
	KeyURLColumns   = "url_columns"
	KeyImageColumns = "image_columns"
	KeyTextPart     = "text_part"
	KeyMetricsFile  = "metrics_file"
	KeyFeed         = "feed"
	KeyPerRow       = "per_row"
)

// デフォルト値
const (
	DefaultTimeoutSec = 10
	DefaultOutputDir  = "generated_mails"
	DefaultPerRow     = 2
)

var (
	DefaultURLColumns   = []string{"url1", "url2"}
	DefaultImageColumns = []string{"img1", "img2"}
)

// Config は1回の実行に必要な設定をすべて保持します。
type Config struct {
	TimeoutSec   int      `mapstructure:"timeout"`
	OutputDir    string   `mapstructure:"output_dir"`
	LogJSON      bool     `mapstructure:"log_json"`
	Input        string   `mapstructure:"input"`
	Template     string   `mapstructure:"template"`
	NamingColumn string   `mapstructure:"naming_column"`
	URLColumns   []string `mapstructure:"url_columns"`
	ImageColumns []string `mapstructure:"image_columns"`
	TextPart     bool     `mapstructure:"text_part"`
	MetricsFile  string   `mapstructure:"metrics_file"`
	Feed         string   `mapstructure:"feed"`
	PerRow       int      `mapstructure:"per_row"`
}

// New は環境変数とデフォルト値を設定した viper インスタンスを返します。
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults はすべてのキーのデフォルト値を設定します。
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTimeout, DefaultTimeoutSec)
	v.SetDefault(KeyOutputDir, DefaultOutputDir)
	v.SetDefault(KeyLogJSON, false)
	v.SetDefault(KeyInput, "")
	v.SetDefault(KeyTemplate, "")
	v.SetDefault(KeyNamingColumn, "")
	v.SetDefault(KeyURLColumns, DefaultURLColumns)
	v.SetDefault(KeyImageColumns, DefaultImageColumns)
	v.SetDefault(KeyTextPart, false)
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyFeed, "")
	v.SetDefault(KeyPerRow, DefaultPerRow)
}

// BindFlags は flags の各フラグを、名前の "-" を "_" に置き換えたキーに結び付けます。
// 明示的に指定されたフラグは環境変数より優先されます。
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("フラグ(%s)のバインドに失敗しました: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load は viper の内容を Config に読み込み、検証します。
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	cfg.URLColumns = cleanColumns(cfg.URLColumns)
	cfg.ImageColumns = cleanColumns(cfg.ImageColumns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	var errs []error
	if c.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("timeout は正の値である必要があります: %d", c.TimeoutSec))
	}
	if len(c.URLColumns) == 0 {
		errs = append(errs, errors.New("url-columns が空です"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output-dir が空です"))
	}
	if c.PerRow <= 0 {
		errs = append(errs, fmt.Errorf("per-row は正の値である必要があります: %d", c.PerRow))
	}
	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}

// HTTPTimeout は1リクエストあたりのタイムアウトを返します。
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// cleanColumns は前後の空白を除き、空の列名を取り除きます。
func cleanColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
