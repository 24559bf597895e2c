package main

import "perp-basis-alerts/internal/cli"

func main() {
	cli.Execute()
}
