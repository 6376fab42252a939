package main

import "github.com/atikulmunna/flowscope/internal/cmd"

func main() {
	cmd.Execute()
}
