package main

import "power-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
