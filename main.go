package main

import "github.com/hivemindhq/hivemind/cmd"

func main() {
	cmd.Execute()
}
