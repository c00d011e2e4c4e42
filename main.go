package main

import "github.com/kozaktomas/eventlens/cmd"

func main() {
	cmd.Execute()
}
