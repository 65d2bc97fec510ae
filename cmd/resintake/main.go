package main

import "github.com/example/reservation-intake/internal/interfaces/cli"

func main() {
	cli.Execute()
}
