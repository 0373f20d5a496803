package main

import "github.com/forPelevin/automv/internal/cli"

func main() {
	cli.Main()
}
