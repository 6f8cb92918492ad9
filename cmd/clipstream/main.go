// Command clipstream は短尺動画共有APIサーバーを起動する。
//
// 使い方:
//
//	clipstream [serve|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/clipstream/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "clipstream: %v\n", err)
		os.Exit(1)
	}
}
