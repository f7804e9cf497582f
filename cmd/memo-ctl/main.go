// Command memo-ctl inspects and maintains a memo cache.
//
// It talks to the running cache daemon, or opens the bbolt file directly
// with -db when no daemon holds it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leonardcser/memo/internal/cache"
	"github.com/leonardcser/memo/internal/config"
	"github.com/leonardcser/memo/internal/daemon"
	"github.com/leonardcser/memo/internal/logger"
	"github.com/leonardcser/memo/internal/store"
	"github.com/leonardcser/memo/internal/tools"
)

const usage = `usage: memo-ctl [-db PATH] <command> [args]

commands:
  list [-ns NAME]       print entries as JSON lines ("-" selects entries without a namespace)
  cleanup               remove expired and unreadable entries
  delete [-ns NAME] KEY delete one string key
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "memo-ctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("memo-ctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	dbPath := fs.String("db", "", "open this bbolt file directly instead of the daemon")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, *dbPath)
	if err != nil {
		return err
	}
	c, err := cache.Load(st, cache.WithLogger(logger.New(os.Stderr, slog.LevelWarn)), cache.WithoutCleanup())
	if err != nil {
		_ = st.Close()
		return err
	}
	defer c.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return list(c, rest, out)
	case "cleanup":
		stats, err := c.Cleanup()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "scanned %d entries, removed %d expired and %d corrupt\n", stats.Scanned, stats.Expired, stats.Corrupt)
		return nil
	case "delete":
		return del(c, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openStore(cfg config.Config, dbPath string) (store.Store, error) {
	if dbPath != "" {
		return store.Open(dbPath, store.Options{Bucket: cfg.Bucket})
	}
	client := daemon.NewClient(cfg.SocketPath)
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("cache daemon at %s: %w (use -db to open the file directly)", cfg.SocketPath, err)
	}
	return client, nil
}

func list(c *cache.Cache, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	ns := fs.String("ns", "", "only list this namespace")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entries, err := c.ListJSON()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, e := range entries {
		if *ns != "" && !tools.InNamespace(e, *ns) {
			continue
		}
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func del(c *cache.Cache, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	ns := fs.String("ns", "", "namespace of the key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("delete takes exactly one key")
	}
	if *ns == "" || *ns == "-" {
		return c.Delete(fs.Arg(0))
	}
	return c.DeleteWithNamespace(cache.NS(*ns), fs.Arg(0))
}
