package main

import "seed-ingest/internal/cli"

func main() {
	cli.Execute()
}
