package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/possync/internal/cli"
)

func main() {
	godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
