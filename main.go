package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	config "github.com/drummonds/officepreview/config"
	database "github.com/drummonds/officepreview/database"
	engine "github.com/drummonds/officepreview/engine"
	"github.com/drummonds/officepreview/engine/officeconv"
	"github.com/drummonds/officepreview/fetch"
	"github.com/drummonds/officepreview/preview"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	officeconv.Logger = Logger
	fetch.Logger = Logger
	preview.Logger = Logger
}

// commandLine is one invocation of the preview command
type commandLine struct {
	Request   preview.DocumentRequest
	ListJobs  int
	PruneJobs time.Duration
}

// parseCommandLine reads the flags describing one preview request
func parseCommandLine(args []string, defaultMode string) (commandLine, error) {
	var (
		cmd  commandLine
		mode string
	)
	fs := flag.NewFlagSet("officepreview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cmd.Request.Source, "source", "", "document to preview: path, file://, http(s)://, s3:// or gs://")
	fs.StringVar(&cmd.Request.Name, "name", "", "original file name, defaults to the last element of the source")
	fs.StringVar(&cmd.Request.Extension, "type", "", "declared file type, defaults to the extension of the name")
	fs.StringVar(&mode, "mode", defaultMode, "raw, image, image-gallery, spreadsheet-html or csv")
	fs.StringVar(&cmd.Request.Credential, "password", "", "password of a protected document")
	fs.BoolVar(&cmd.Request.ForceRefresh, "refresh", false, "ignore cached artifacts")
	fs.BoolVar(&cmd.Request.HTMLView, "html", false, "convert spreadsheets to html")
	fs.BoolVar(&cmd.Request.FromArchive, "archive", false, "source belongs to an open archive and is never deleted")
	fs.IntVar(&cmd.ListJobs, "jobs", 0, "list the most recent conversion jobs instead of previewing")
	fs.DurationVar(&cmd.PruneJobs, "prune-jobs", 0, "delete finished conversion jobs older than this")
	if err := fs.Parse(args); err != nil {
		return cmd, err
	}
	cmd.Request.Mode = preview.Mode(strings.ToLower(mode))
	if cmd.Request.Source == "" && fs.NArg() > 0 {
		cmd.Request.Source = fs.Arg(0)
	}
	if cmd.Request.Source == "" && cmd.ListJobs == 0 && cmd.PruneJobs == 0 {
		return cmd, fmt.Errorf("no source given")
	}
	return cmd, nil
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	cmd, err := parseCommandLine(os.Args[1:], serverConfig.OfficePreview)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: officepreview -source <document> [-mode image-gallery] [-password secret] [-refresh] [-html]")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Show info banner if using ephemeral database
	if serverConfig.DatabaseType == "ephemeral" {
		Logger.Warn("Ephemeral database mode, the cache index is destroyed on exit")
	}

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Failed to setup database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(context.Background(), cmd, serverConfig, db, os.Stdout); err != nil {
		Logger.Error("Preview failed", "error", err)
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd commandLine, serverConfig config.ServerConfig, db database.Repository, out io.Writer) error {
	if cmd.PruneJobs > 0 {
		removed, err := db.DeleteOldJobs(ctx, cmd.PruneJobs)
		if err != nil {
			return err
		}
		Logger.Info("Pruned conversion jobs", "removed", removed)
	}
	if cmd.ListJobs > 0 {
		jobs, err := db.GetRecentJobs(ctx, cmd.ListJobs)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(jobs)
	}
	if cmd.Request.Source == "" {
		return nil
	}

	if err := engine.StartupChecks(serverConfig); err != nil {
		return err
	}
	pipeline, err := engine.NewPipeline(ctx, serverConfig, db, db)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	plan := pipeline.Resolve(ctx, cmd.Request, engine.PolicyFromConfig(serverConfig))
	data, err := preview.MarshalPlan(plan)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
