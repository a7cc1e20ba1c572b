package main

import (
	"github.com/luma/riakpb/cmd"
)

func main() {
	cmd.Execute()
}
