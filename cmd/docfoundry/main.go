// Command docfoundry serves and queries a versioned Markdown corpus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/docfoundry/docfoundry/pkg/config"
	"github.com/docfoundry/docfoundry/pkg/core"
	"github.com/docfoundry/docfoundry/pkg/logger"
	"github.com/docfoundry/docfoundry/pkg/observability"
	"github.com/docfoundry/docfoundry/pkg/rag"
	"github.com/docfoundry/docfoundry/pkg/server"
)

type globals struct {
	Config    string `short:"c" help:"Path to YAML config file." type:"existingfile" optional:""`
	Root      string `short:"r" help:"Corpus root directory (overrides config)."`
	LogLevel  string `help:"Log level: debug, info, warn, error." default:""`
	LogFormat string `help:"Log format: text or json." default:""`
}

type cli struct {
	globals

	Serve  serveCmd  `cmd:"" help:"Run the HTTP service."`
	Index  indexCmd  `cmd:"" help:"Chunk, embed, and upsert the corpus into the vector store."`
	Search searchCmd `cmd:"" help:"Run a lexical search against the corpus."`
	Answer answerCmd `cmd:"" help:"Ask a grounded question against the corpus."`
}

// loadConfig layers file, environment, and flags, then validates.
func (g *globals) loadConfig() (*config.Config, error) {
	// A missing .env file is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Root != "" {
		cfg.Root = g.Root
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type serveCmd struct{}

func (s *serveCmd) Run(g *globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.InitMetrics(ctx)
	if err != nil {
		return err
	}

	c, err := core.New(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer c.Close()

	events, err := c.StartWatcher(ctx)
	if err != nil {
		return err
	}
	if events != nil {
		go func() {
			for event := range events {
				if event.Err != nil {
					slog.Warn("Watcher reported error", "error", event.Err)
				}
			}
		}()
	}

	slog.Info("docfoundry starting", "root", cfg.Root,
		"store", cfg.VectorStore.Type, "embedder", cfg.Embedder.Provider)
	return server.New(c, cfg.Server).Start(ctx)
}

type indexCmd struct{}

func (i *indexCmd) Run(g *globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := core.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	stats, err := c.Reindex(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

type searchCmd struct {
	Query      []string `arg:"" help:"Search query."`
	Release    string   `help:"Filter by release, e.g. R2."`
	Service    string   `help:"Filter by service name."`
	MaxResults int      `help:"Maximum hits to return."`
}

func (s *searchCmd) Run(g *globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := core.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Search(ctx, core.SearchRequest{
		Query:      strings.Join(s.Query, " "),
		Release:    s.Release,
		Service:    s.Service,
		MaxResults: s.MaxResults,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

type answerCmd struct {
	Question []string `arg:"" help:"Question to answer from the corpus."`
	K        int      `help:"Retrieval depth."`
	Reindex  bool     `help:"Reindex the corpus before answering."`
}

func (a *answerCmd) Run(g *globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := core.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if a.Reindex {
		if _, err := c.Reindex(ctx); err != nil {
			return err
		}
	}

	result, err := c.Answer(ctx, rag.Request{
		Query: strings.Join(a.Question, " "),
		K:     a.K,
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, cit := range result.Citations {
			fmt.Printf("  - %s (%s, lines %d-%d)\n",
				cit.Heading, cit.File, cit.LineStart, cit.LineEnd)
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("docfoundry"),
		kong.Description("Retrieval service for versioned Markdown documentation."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&c.globals); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
