package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "最初の行から、画像をすべて埋め込んだ単一のプレビューHTMLを生成します",
	Long: `入力テーブルの最初の行だけをレンダリングし、リモート画像とテンプレートのアセットを
data URI として埋め込んだ <output-dir>/preview.html を書き出します。`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		_, path, err := p.Preview(cmd.Context())
		if err != nil {
			return fmt.Errorf("プレビューの生成エラー: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "プレビュー: %s\n", path)
		return nil
	},
}

func init() {
	addInputFlag(previewCmd)
	addTemplateFlag(previewCmd)
	addURLColumnsFlag(previewCmd)
	addImageColumnsFlag(previewCmd)

	previewCmd.MarkFlagRequired("input")
	previewCmd.MarkFlagRequired("template")
}
