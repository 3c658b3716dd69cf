package main

import "github.com/averin/conduit/internal/cli"

func main() {
	cli.Execute()
}
