package main

import "itn-reports/internal/cli"

func main() {
	cli.Execute()
}
