package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/queryadvisor/pgopt/internal/advisor"
	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/gateway"
	"github.com/queryadvisor/pgopt/internal/nlhint"
	"github.com/queryadvisor/pgopt/internal/obslog"
)

var version string

// opts mirrors the teacher's flat go-flags struct (cmd/psqldef/psqldef.go),
// widened to cover connection settings plus the per-operation knobs spec.md
// section 6 exposes on Explain/Optimize/Workload.
type opts struct {
	User     string `short:"U" long:"user" description:"PostgreSQL user name" value-name:"username" default:"postgres"`
	Password string `short:"W" long:"password" description:"PostgreSQL user password, overridden by $PGPASS" value-name:"password"`
	Prompt   bool   `long:"prompt" description:"Prompt for the PostgreSQL user password instead of passing it on the command line"`
	Host     string `short:"h" long:"host" description:"Host or socket directory to connect to the PostgreSQL server" value-name:"hostname" default:"127.0.0.1"`
	Port     uint   `short:"p" long:"port" description:"Port used for the connection" value-name:"port" default:"5432"`
	DbName   string `short:"d" long:"db" description:"Database name" value-name:"name" required:"true"`
	SslMode  string `long:"sslmode" description:"PostgreSQL sslmode" value-name:"mode"`

	Op string `long:"op" description:"Operation to run" choice:"lint" choice:"explain" choice:"optimize" choice:"workload" default:"optimize"`

	File string `short:"f" long:"file" description:"Read SQL from the file, rather than stdin" value-name:"filename" default:"-"`

	Analyze   bool `long:"analyze" description:"(explain) run EXPLAIN ANALYZE instead of a plan-only EXPLAIN"`
	WhatIf    bool `long:"what-if" description:"(optimize, workload) evaluate index candidates with hypothetical indexes before ranking"`
	Diff      bool `long:"diff" description:"(optimize) include a unified diff for rewrite suggestions"`
	TopK      int  `long:"top-k" description:"(optimize, workload) maximum suggestions returned" value-name:"n" default:"10"`
	TimeoutMs int  `long:"timeout-ms" description:"Per-statement timeout in milliseconds" value-name:"ms" default:"4000"`

	ConfigFile string `long:"config" description:"Path to a YAML config file overlaying the defaults" value-name:"filename"`

	Help    bool `long:"help" description:"Show this help"`
	Version bool `long:"version" description:"Show this version"`
}

func parseOptions(args []string) (*opts, []string) {
	var o opts
	parser := flags.NewParser(&o, flags.None)
	parser.Usage = "[option...]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}

	if o.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if o.Version {
		fmt.Println(version)
		os.Exit(0)
	}
	return &o, rest
}

func readInput(path string) (string, error) {
	var r io.Reader
	if path == "-" || path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// splitStatements is a best-effort statement splitter for Workload's
// multi-query input: one statement per line, or semicolon-separated on a
// single line. It never needs to be exact since model.Parse rejects
// anything malformed per-statement rather than for the whole input.
func splitStatements(input string) []string {
	var out []string
	for _, line := range strings.Split(input, "\n") {
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out
}

func main() {
	obslog.Init()
	o, _ := parseOptions(os.Args[1:])

	cfg := config.Default()
	if o.ConfigFile != "" {
		loaded, err := config.Load(o.ConfigFile)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	password, ok := os.LookupEnv("PGPASS")
	if !ok {
		password = o.Password
	}
	if o.Prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal(err)
		}
		password = string(pass)
	}

	dsn := gateway.DSNConfig{
		Host:     o.Host,
		Port:     int(o.Port),
		User:     o.User,
		Password: password,
		DbName:   o.DbName,
		SslMode:  o.SslMode,
	}
	if _, err := os.Stat(dsn.Host); !os.IsNotExist(err) {
		dsn.Socket = dsn.Host
	}

	gw, err := gateway.NewPostgresGateway(dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer gw.Close()

	engine := advisor.New(gw, cfg)
	engine.NL = nlhint.NullProducer{}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	input, err := readInput(o.File)
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	switch o.Op {
	case "lint":
		out := engine.Lint(input)
		if err := enc.Encode(out); err != nil {
			log.Fatal(err)
		}

	case "explain":
		out, err := engine.Explain(ctx, input, o.Analyze, o.TimeoutMs, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := enc.Encode(out); err != nil {
			log.Fatal(err)
		}

	case "optimize":
		out, err := engine.Optimize(ctx, input, advisor.OptimizeOptions{
			WhatIf:    o.WhatIf,
			TopK:      o.TopK,
			TimeoutMs: o.TimeoutMs,
			Diff:      o.Diff,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := enc.Encode(out); err != nil {
			log.Fatal(err)
		}

	case "workload":
		stmts := splitStatements(input)
		out := engine.Workload(ctx, stmts, advisor.WorkloadOptions{TopK: o.TopK, WhatIf: o.WhatIf})
		if err := enc.Encode(out); err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatalf("unknown --op %q", o.Op)
	}
}
