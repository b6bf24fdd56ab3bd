// Command idreg is the identity registry host.
package main

import (
	"context"
	"os"

	"github.com/roach88/idreg/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
