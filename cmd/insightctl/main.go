package main

import "github.com/ConfabulousDev/confab-insights/internal/cli"

var version string

func main() {
	cli.Execute(version)
}
