// Command salesrollup loads the sales export, maintains the daily sales
// rollup and writes the sales reports.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"salesrollup/internal/cli"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "salesrollup/internal/storage/all"
)

func main() {
	// A missing .env is normal; anything else is worth a warning.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
