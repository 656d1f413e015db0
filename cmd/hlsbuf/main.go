package main

import "github.com/OpenTraceLab/OpenTraceHLS/cmd/hlsbuf/cmd"

func main() {
	cmd.Execute()
}
