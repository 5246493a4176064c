package main

import "github.com/shouni/go-mail-packager/cmd"

// main 関数は、cmd.Execute を呼び出します。エラー処理と終了コードは clibase が担当します。
func main() {
	cmd.Execute()
}
