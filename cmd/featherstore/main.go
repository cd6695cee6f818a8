// Package main is the FeatherStore command-line client for S3-compatible
// object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/featherstore/featherstore/internal/config"
	"github.com/featherstore/featherstore/internal/logging"
	"github.com/featherstore/featherstore/internal/metrics"
	"github.com/featherstore/featherstore/internal/storage"
)

const usage = `usage: featherstore [flags] <command> [args]

commands:
  put <name> <file>    upload a local file under the given object name
  get <name> [file]    download an object (to stdout without a file)
  rm <name>            delete an object
  ls [path]            list directories and files under a path
  stat <name>          print an object's size
  url <name>           print an object's public URL
`

func main() {
	configPath := flag.String("config", "featherstore.yaml", "path to configuration file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config)")
	timeout := flag.Int("timeout", 0, "per-request timeout in seconds (default: from config)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *timeout != 0 {
		cfg.TimeoutSeconds = *timeout
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	store, err := storage.NewStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build store: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := run(ctx, store, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

// run dispatches one subcommand against the store.
func run(ctx context.Context, store *storage.Store, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "put":
		if len(rest) != 2 {
			return fmt.Errorf("usage: put <name> <file>")
		}
		return put(ctx, store, rest[0], rest[1])
	case "get":
		if len(rest) != 1 && len(rest) != 2 {
			return fmt.Errorf("usage: get <name> [file]")
		}
		target := ""
		if len(rest) == 2 {
			target = rest[1]
		}
		return get(ctx, store, rest[0], target)
	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm <name>")
		}
		return store.Delete(ctx, rest[0])
	case "ls":
		path := ""
		if len(rest) > 0 {
			path = rest[0]
		}
		return list(ctx, store, path)
	case "stat":
		if len(rest) != 1 {
			return fmt.Errorf("usage: stat <name>")
		}
		return stat(ctx, store, rest[0])
	case "url":
		if len(rest) != 1 {
			return fmt.Errorf("usage: url <name>")
		}
		fmt.Println(store.URL(rest[0]))
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func put(ctx context.Context, store *storage.Store, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	stored, err := store.Save(ctx, name, f)
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %s in %s\n", stored, time.Since(start).Round(time.Millisecond))
	return nil
}

func get(ctx context.Context, store *storage.Store, name, target string) error {
	f := store.Open(ctx, name)
	defer f.Close()

	var out io.Writer = os.Stdout
	if target != "" {
		dst, err := os.Create(target)
		if err != nil {
			return err
		}
		defer dst.Close()
		out = dst
	}

	data, err := f.ReadAll()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func list(ctx context.Context, store *storage.Store, path string) error {
	dirs, files, err := store.List(ctx, path)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		fmt.Println(d + "/")
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func stat(ctx context.Context, store *storage.Store, name string) error {
	size, err := store.Size(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%d bytes\n", strings.TrimPrefix(name, "/"), size)
	return nil
}
