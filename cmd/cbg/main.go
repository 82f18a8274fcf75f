package main

import "github.com/ogulcanaydogan/cloud-budget-guardian/internal/cli"

func main() {
	cli.Execute()
}
