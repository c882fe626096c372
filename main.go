package main

import "xrate-oracle/internal/cli"

func main() {
	cli.Execute()
}
