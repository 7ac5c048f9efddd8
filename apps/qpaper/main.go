package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/quatton/qpaper/apps/qpaper/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "qpaper crashed: %v\n", r)
			if os.Getenv("QPAPER_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cmd.Execute()
}
