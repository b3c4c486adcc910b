package main

import "github.com/xtruel/roma-map-revamp/internal/cli"

func main() {
	cli.Execute()
}
