package main

import (
	"os"

	"github.com/dalemusser/portfolio/internal/contactctl"
)

func main() {
	os.Exit(contactctl.Run("contactctl", os.Args[1:], os.Stdout, os.Stderr))
}
