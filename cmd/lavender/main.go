package main

import "github.com/aweris/lavender/cmd/lavender/cmd"

func main() {
	cmd.Execute()
}
