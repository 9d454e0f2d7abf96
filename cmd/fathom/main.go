// Command fathom is the CLI for the fathom retrieval engine: ask questions
// against indexed collections, load documents, or run the HTTP server.
//
// Usage:
//
//	fathom query "How does reflection widen retrieval?" [--max-iter 3] [--naive]
//	fathom load ./docs https://example.com/post [--collection docs] [--force]
//	fathom serve [--addr :8000]
//
// Configuration comes from fathom.toml (or FATHOM_CONFIG) with FATHOM_* env
// overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	fathom "github.com/fathomhq/fathom"
	"github.com/fathomhq/fathom/ingest"
	"github.com/fathomhq/fathom/internal/app"
	"github.com/fathomhq/fathom/internal/config"
	"github.com/fathomhq/fathom/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "query":
		err = runQuery(ctx, os.Args[2:])
	case "load":
		err = runLoad(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `fathom - agentic retrieval-augmented question answering

Commands:
  query <text>       answer a question against the indexed collections
  load <path|url>    load files or websites into a collection
  serve              run the HTTP server

Run "fathom <command> -h" for command flags.`)
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("FATHOM_CONFIG"), "path to fathom.toml")
	maxIter := fs.Int("max-iter", 0, "override the iteration cap for this query")
	naive := fs.Bool("naive", false, "bypass the agent router and use single-pass search")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("query text is required")
	}

	logger := setupLogger(*verbose)
	a, err := app.Build(ctx, config.Load(*cfgPath), logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var opts []fathom.QueryOption
	if *maxIter > 0 {
		opts = append(opts, fathom.WithMaxIter(*maxIter))
	}

	var answer fathom.Answer
	if *naive {
		answer, err = a.Engine.NaiveQuery(ctx, question, opts...)
	} else {
		answer, err = a.Engine.Query(ctx, question, opts...)
	}
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Println()
	if refs := references(answer.Results); len(refs) > 0 {
		fmt.Println("References:")
		for _, ref := range refs {
			fmt.Println("  -", ref)
		}
		fmt.Println()
	}
	fmt.Printf("Consumed tokens: %d\n", answer.Tokens)
	return nil
}

// references lists distinct source references in first-seen order.
func references(results []fathom.RetrievalResult) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		if r.Reference == "" || seen[r.Reference] {
			continue
		}
		seen[r.Reference] = true
		out = append(out, r.Reference)
	}
	return out
}

func runLoad(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("FATHOM_CONFIG"), "path to fathom.toml")
	collection := fs.String("collection", "", "target collection (default: store default)")
	description := fs.String("description", "", "collection description, used for routing")
	force := fs.Bool("force", false, "drop and recreate the collection first")
	batchSize := fs.Int("batch-size", 0, "chunks per embed/insert batch")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("at least one path or url is required")
	}

	logger := setupLogger(*verbose)
	cfg := config.Load(*cfgPath)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ingestor := a.Ingestor
	if *batchSize > 0 {
		ingestor = ingest.NewIngestor(a.DB, a.Embedding,
			ingest.WithBatchSize(*batchSize),
			ingest.WithLogger(logger),
		)
	}

	var paths, urls []string
	for _, arg := range fs.Args() {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			urls = append(urls, arg)
		} else {
			paths = append(paths, arg)
		}
	}

	opts := ingest.LoadOptions{
		Collection:  *collection,
		Description: *description,
		Force:       *force,
	}

	var total int
	if len(paths) > 0 {
		n, err := ingestor.LoadFiles(ctx, paths, opts)
		if err != nil {
			return err
		}
		total += n
		// A forced recreate must not wipe the chunks the first call wrote.
		opts.Force = false
	}
	if len(urls) > 0 {
		n, err := ingestor.LoadWebsite(ctx, urls, opts)
		if err != nil {
			return err
		}
		total += n
	}

	fmt.Printf("Loaded %d chunks\n", total)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("FATHOM_CONFIG"), "path to fathom.toml")
	addr := fs.String("addr", "", "listen address (default from config)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	logger := setupLogger(*verbose)
	cfg := config.Load(*cfgPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx, cfg.Server.Addr)
}
