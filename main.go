package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/abiiranathan/pdfgrep/cli"
	"github.com/abiiranathan/pdfgrep/pdf"
	"github.com/abiiranathan/pdfgrep/server"
)

// Temporary storage for generated images
const pagesDir = "pages"

// Default configuration for the CLI
var config = &cli.DefaultConfig

func main() {
	log.SetPrefix("[pdfgrep]: ")
	log.SetFlags(log.Lshortfile)

	// Set the locale to the system's default
	pdf.SetLocale()

	// Stop searches and the server on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startServer := func() {
		if err := server.Run(ctx, config, pagesDir); err != nil {
			log.Fatalln(err)
		}
	}

	// Parse the command line arguments
	cmd := cli.DefineFlags(ctx, config, startServer)
	subcmd, err := cmd.Parse(os.Args)
	if err != nil {
		log.Fatalln(err)
	}

	// If the subcommand is nil, print the usage and exit
	if subcmd == nil {
		cmd.PrintUsage(os.Stdout)
		os.Exit(1)
	}

	// Run the subcommand
	subcmd.Handler()
}
