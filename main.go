package main

import (
	"github.com/sagan/gridgen/cmd"
)

func main() {
	cmd.Execute()
}
