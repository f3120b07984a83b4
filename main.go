package main

import (
	"github.com/ColonelBlimp/beatdetect/cmd"
	"github.com/ColonelBlimp/beatdetect/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
