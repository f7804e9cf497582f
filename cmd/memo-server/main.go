package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonardcser/memo/internal/cache"
	"github.com/leonardcser/memo/internal/config"
	"github.com/leonardcser/memo/internal/daemon"
	"github.com/leonardcser/memo/internal/logger"
	promadapter "github.com/leonardcser/memo/internal/metrics/prometheus"
	"github.com/leonardcser/memo/internal/tools"
	"github.com/leonardcser/memo/internal/web"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting memo MCP server")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}
	codec, err := cache.CodecByName(cfg.Codec)
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}

	client, err := connectCache(cfg.SocketPath)
	if err != nil {
		logger.Errorf("Failed to connect to cache daemon: %v", err)
		panic(err)
	}
	logger.Infof("Connected to cache daemon at %s", cfg.SocketPath)

	opts := []cache.Option{cache.WithLogger(logger.Slog()), cache.WithCodec(codec)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, cache.WithMetrics(promadapter.NewCacheMetrics(reg)))
		go serveMetrics(cfg.MetricsAddr, reg)
	}
	c, err := cache.Load(client, opts...)
	if err != nil {
		logger.Errorf("Failed to load cache: %v", err)
		panic(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.CleanupInterval > 0 {
		go c.RunJanitor(ctx, cfg.CleanupInterval)
	}

	fetcher := web.NewFetcher(c, cfg.FetchTTL, cfg.UserAgent)
	defer fetcher.Close()
	searcher := web.NewSearcher(c, cfg.SearchTTL, cfg.UserAgent)
	defer searcher.Close()

	s := server.NewMCPServer(
		"memo",
		"0.2.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("web-fetch",
		mcp.WithDescription(multiline(
			"Fetches content from a specified URL and returns the parsed content",
			"\nFunctionality:",
			"- Takes a fully-formed http(s) URL as input",
			"- Returns the title, description, links and the page body as markdown",
			"\nUsage notes:",
			"- This tool is read-only and does not modify any files",
			"- Results are cached for "+cfg.FetchTTL.String()+"; concurrent requests for the same URL share one download",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch content from")),
	), tools.WebFetchHandler(fetcher))

	s.AddTool(mcp.NewTool("web-search",
		mcp.WithDescription(multiline(
			"Searches the web and returns result titles, links and snippets",
			"\nUsage notes:",
			"- Use this tool for information beyond your knowledge cutoff",
			"- Results are cached per query for "+cfg.SearchTTL.String(),
		)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query to use")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (1-20, default 10)")),
	), tools.WebSearchHandler(searcher))

	s.AddTool(mcp.NewTool("cache-list",
		mcp.WithDescription("Lists cached entries as JSON lines: key, expiry and value"),
		mcp.WithString("namespace", mcp.Description("Only list this namespace, e.g. web_fetch; \"-\" for entries without one")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50, 0 for all)")),
	), tools.CacheListHandler(c))

	s.AddTool(mcp.NewTool("cache-cleanup",
		mcp.WithDescription("Removes expired and unreadable entries from the cache"),
	), tools.CacheCleanupHandler(c))

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("metrics server: %v", err)
	}
}

// connectCache returns a client for the daemon at sock, starting the daemon
// if nothing answers.
func connectCache(sock string) (*daemon.Client, error) {
	client := daemon.NewClient(sock)
	err := client.Ping()
	if err == nil {
		return client, nil
	}

	logger.Warnf("Cache daemon not reachable: %v, attempting to start it", err)
	if startErr := startCacheDaemon(); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = client.Ping(); err == nil {
			return client, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, err
}

func startCacheDaemon() error {
	candidates := []string{}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "memo-cache"))
	}
	if path, err := exec.LookPath("memo-cache"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "./memo-cache")

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Env = os.Environ()
		return cmd.Start()
	}
	return exec.ErrNotFound
}
