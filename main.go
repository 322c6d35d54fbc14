package main

import (
	"github.com/sw33tLie/goesplan/cmd"
)

func main() {
	cmd.Execute()
}
