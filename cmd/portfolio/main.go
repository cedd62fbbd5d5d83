// cmd/portfolio/main.go
package main

import (
	"context"
	"os"

	"github.com/dalemusser/portfolio/app"
	"github.com/dalemusser/portfolio/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		os.Exit(1)
	}
}
