// Package main is the entry point for the taskr CLI.
package main

import "github.com/productivity/taskr/internal/cli"

func main() {
	cli.Execute()
}
