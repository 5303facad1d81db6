package main

import "github.com/dkeye/rtcserver/internal/cli"

func main() {
	cli.Execute()
}
