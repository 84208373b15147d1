package main

import "github.com/brensch/climatepart/cmd"

func main() {
	cmd.Execute()
}
