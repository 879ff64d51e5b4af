package main

import (
	"fmt"
	"os"

	"github.com/aaronlee0321/gddsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
