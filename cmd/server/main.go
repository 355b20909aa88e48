package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/catchkeeper/internal/server"
)

func main() {
	os.Exit(server.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
