package main

import (
	"fmt"
	"os"

	"github.com/thep200/gitee-crawler/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
