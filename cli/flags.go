package cli

import (
	"context"
	"log"
	"os"

	"github.com/abiiranathan/goflag"
)

// DefineFlags registers the subcommands. Handlers run with ctx, which main
// cancels on SIGINT.
func DefineFlags(ctx context.Context, config *Config, runserver func()) *goflag.Context {
	// Flags required by multiple subcomands
	fileFlag := goflag.Flag{
		FlagType:  goflag.FlagFilePath,
		Name:      "file",
		ShortName: "f",
		Value:     &config.Filename,
		Usage:     "The PDF file to search",
		Required:  true,
	}

	patternFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "query",
		ShortName: "q",
		Value:     &config.Pattern,
		Usage:     "The search term or regex pattern (case-insensitive)",
		Required:  true,
	}

	contextFlag := goflag.Flag{
		FlagType:  goflag.FlagInt,
		Name:      "context",
		ShortName: "c",
		Value:     &config.ContextSize,
		Usage:     "Number of characters of context around each match",
		Required:  false,
		Validator: goflag.Min(0),
	}

	saveFlag := goflag.Flag{
		FlagType:  goflag.FlagBool,
		Name:      "save-images",
		ShortName: "s",
		Value:     &config.SaveImages,
		Usage:     "Render the page of every match to a PNG image",
	}

	pathFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "path",
		ShortName: "p",
		Value:     &config.OutputDir,
		Usage:     "Output directory for rendered images, created if absent",
	}

	engineFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "engine",
		ShortName: "e",
		Value:     &config.Engine,
		Usage:     "Text engine: poppler or plain (pure Go, no rendering)",
	}

	outputFlags := []*goflag.Flag{
		{FlagType: goflag.FlagBool, Name: "ordered", ShortName: "r", Value: &config.Ordered,
			Usage: "Print matches in page order once the search has finished"},
		{FlagType: goflag.FlagBool, Name: "json", ShortName: "j", Value: &config.JSON,
			Usage: "Print one JSON object per match"},
		{FlagType: goflag.FlagBool, Name: "literal", ShortName: "F", Value: &config.Literal,
			Usage: "Match the query as plain text, not a regex"},
		{FlagType: goflag.FlagBool, Name: "score", ShortName: "S", Value: &config.Score,
			Usage: "Score the relevance of each match"},
	}

	// Create flag context.
	cmd := goflag.NewContext()

	// global flags
	cmd.AddFlag(goflag.FlagInt, "threads", "t",
		&config.Threads,
		"No of worker threads per document",
		false, goflag.Min(1), goflag.Max(1000))

	// register subcommands
	search := cmd.AddSubCommand("search", "Search a single PDF file", func() {
		if err := SearchFile(ctx, config, os.Stdout); err != nil {
			log.Fatalln(err)
		}
	}).AddFlagPtr(&fileFlag).AddFlagPtr(&patternFlag).AddFlagPtr(&contextFlag).
		AddFlagPtr(&saveFlag).AddFlagPtr(&pathFlag).AddFlagPtr(&engineFlag)

	searchDir := cmd.AddSubCommand("search_dir", "Search directory of PDF files recursively", func() {
		if err := SearchDirectory(ctx, config, os.Stdout); err != nil {
			log.Fatalln(err)
		}
	}).AddFlag(goflag.FlagDirPath, "directory", "d", &config.Directory, "The directory to search", true).
		AddFlagPtr(&patternFlag).AddFlagPtr(&contextFlag).
		AddFlagPtr(&saveFlag).AddFlagPtr(&pathFlag).AddFlagPtr(&engineFlag)

	for _, flag := range outputFlags {
		search.AddFlagPtr(flag)
		searchDir.AddFlagPtr(flag)
	}

	cmd.AddSubCommand("render", "Render a single page to PNG or PDF", func() {
		if err := RenderPage(config); err != nil {
			log.Fatalln(err)
		}
	}).AddFlagPtr(&fileFlag).
		AddFlag(goflag.FlagInt, "page", "n", &config.Page, "Zero-indexed page number", true).
		AddFlag(goflag.FlagString, "output", "o", &config.Output, "Output file (default page_NNN.png in --path)", false).
		AddFlag(goflag.FlagBool, "vector", "v", &config.Vector, "Write a single page PDF instead of a PNG", false).
		AddFlag(goflag.FlagInt, "dpi", "D", &config.DPI, "Raster resolution", false).
		AddFlagPtr(&pathFlag)

	// Run server
	cmd.AddSubCommand("runserver", "Start an Http server for search", runserver).
		AddFlag(goflag.FlagInt, "port", "p", &config.Port, "The port to run the server on", false).
		AddFlag(goflag.FlagString, "directory", "d", &config.Directory, "The PDF file or directory to serve", true).
		AddFlagPtr(&engineFlag)

	return cmd
}
