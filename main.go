package main

import (
	"os"

	"github.com/gantryhq/gantry/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
