package main

import (
	"fmt"
	"os"

	"github.com/frank-taylor-lieder/otail/internal/paniclog"
)

func main() {
	if err := paniclog.Init("otail-panic.log"); err != nil {
		fmt.Fprintf(os.Stderr, "otail: %v\n", err)
	}
	defer paniclog.Close()
	defer paniclog.Recover()

	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
