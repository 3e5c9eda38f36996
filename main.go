package main

import "github.com/presskit-builder/apiserver/cmd"

func main() {
	cmd.Execute()
}
