package main

import (
	"context"
	"io"
	"log"
	"os"

	"schoolboard/internal/config"
	"schoolboard/internal/credentials"
	"schoolboard/internal/roster"
	"schoolboard/internal/staff"
	"schoolboard/internal/store"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	cfg := config.Load()

	// set up the document store; opening it creates the schema
	s, err := store.Open(context.Background(), store.Options{Backend: cfg.DocStore, DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	errAndDie(err)
	defer s.Close()

	// start CLI
	cli := newCommandLine(s, os.Stdout)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(s store.Store, out io.Writer) *commandLine {
	return &commandLine{
		store:    s,
		staff:    staff.NewService(s, nil),
		registry: credentials.NewRegistry(s),
		roster:   roster.NewService(s, nil, nil),
		out:      out,
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
