package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"modelgraph/internal/app"
	"modelgraph/internal/config"
	"modelgraph/internal/explain"
	"modelgraph/internal/logging"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("modelgraph error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type cliOptions struct {
	query         string
	queryFile     string
	operationName string
	variables     string
	output        string
	showVersion   bool
}

func newFlagSet() (*pflag.FlagSet, *cliOptions) {
	opts := &cliOptions{}
	fs := config.NewFlagSet("modelgraph")
	fs.StringVarP(&opts.query, "query", "q", "", "GraphQL document to explain")
	fs.StringVarP(&opts.queryFile, "query-file", "f", "", "Path to a GraphQL document (use - for stdin)")
	fs.StringVar(&opts.operationName, "operation", "", "Operation to explain when the document has several")
	fs.StringVar(&opts.variables, "variables", "", "JSON object of variable values")
	fs.StringVarP(&opts.output, "output", "o", "text", "Output format (text, json)")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	return fs, opts
}

func run(args []string, stdout io.Writer) error {
	fs, opts := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "modelgraph %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.LoadFromFlags(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" || cfg.Observability.ServiceVersion == "dev" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	req, err := buildRequest(opts, os.Stdin)
	if err != nil {
		return err
	}
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.WithRunID(runID)

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() { _ = a.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunIDContext(ctx, runID)

	if err := a.Init(ctx); err != nil {
		return err
	}
	statements, err := a.Explain(ctx, req)
	if err != nil {
		return err
	}
	return writeStatements(stdout, statements, opts.output)
}

// buildRequest reads the document from --query or --query-file and decodes
// --variables.
func buildRequest(opts *cliOptions, stdin io.Reader) (explain.Request, error) {
	query := opts.query
	switch {
	case query != "" && opts.queryFile != "":
		return explain.Request{}, fmt.Errorf("--query and --query-file are mutually exclusive")
	case opts.queryFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return explain.Request{}, fmt.Errorf("failed to read query from stdin: %w", err)
		}
		query = string(data)
	case opts.queryFile != "":
		data, err := os.ReadFile(opts.queryFile)
		if err != nil {
			return explain.Request{}, fmt.Errorf("failed to read query file: %w", err)
		}
		query = string(data)
	}
	if strings.TrimSpace(query) == "" {
		return explain.Request{}, fmt.Errorf("a GraphQL document is required (--query or --query-file)")
	}

	req := explain.Request{Query: query, OperationName: opts.operationName}
	if strings.TrimSpace(opts.variables) != "" {
		if err := json.Unmarshal([]byte(opts.variables), &req.Variables); err != nil {
			return explain.Request{}, fmt.Errorf("failed to parse --variables: %w", err)
		}
	}
	return req, nil
}

func writeStatements(w io.Writer, statements []explain.Statement, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statements)
	}

	for i, stmt := range statements {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "-- %s (%s, %d joins)\n", stmt.Field, stmt.Model, stmt.Joins)
		fmt.Fprintf(w, "%s;\n", stmt.SQL)
		if len(stmt.Args) > 0 {
			fmt.Fprintf(w, "-- args: %v\n", stmt.Args)
		}
	}
	return nil
}
