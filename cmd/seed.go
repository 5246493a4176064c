package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-mail-packager/internal/config"
)

// 生成したテーブルの出力先 ("-" は標準出力)
var seedOutput string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "RSS/Atomフィードの記事リンクから入力テーブルを生成します",
	Long:  `指定されたフィードを取得・解析し、記事リンクを per-row 件ずつまとめた ID;url1;…;urlN 形式のテーブルを書き出します。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		return writeOutput(cmd, seedOutput, func(w io.Writer) error {
			_, err := p.Seed(cmd.Context(), w)
			return err
		})
	},
}

func init() {
	seedCmd.Flags().StringP("feed", "u", "", "記事リンクを取得するフィード (RSS/Atom) URL")
	seedCmd.Flags().Int("per-row", config.DefaultPerRow, "1行あたりのURL列の数")
	seedCmd.Flags().StringVarP(&seedOutput, "output", "o", "-", "生成したテーブルの出力先 (- は標準出力)")

	// URLフラグを必須にする
	seedCmd.MarkFlagRequired("feed")
}
