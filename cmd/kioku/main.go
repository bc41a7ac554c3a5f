// Package main is the kioku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/cli"
	"github.com/kaiwa-app/kioku/internal/config"
	"github.com/kaiwa-app/kioku/internal/embedding"
	"github.com/kaiwa-app/kioku/internal/keyword"
	"github.com/kaiwa-app/kioku/internal/manager"
	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/internal/retriever"
	"github.com/kaiwa-app/kioku/internal/server"
	"github.com/kaiwa-app/kioku/internal/storage"
	"github.com/kaiwa-app/kioku/internal/vector"
	"github.com/kaiwa-app/kioku/internal/watcher"
	"github.com/kaiwa-app/kioku/pkg/utils"
)

var version = "dev"

const defaultServerURL = "http://127.0.0.1:8321"

// defaultConfigPath is the per-user config location; the engine runs next to
// a desktop client, so everything lives under the user's home.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".kioku", "config.yaml")
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence (for development), so "kioku serve"
// from the project dir uses the project's config. Returns the config and the
// path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath() {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "kb":
		runKB()
	case "import":
		runImport()
	case "docs":
		runDocs()
	case "query":
		runQuery()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watched folders, import pipeline, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	mgr := components.Manager
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.New(
		cfg.Watch,
		func(kbID, path string) {
			doc, err := mgr.ImportDocument(context.Background(), kbID, path)
			if err != nil {
				logger.Warn("watch import failed", zap.String("path", path), zap.Error(err))
				return
			}
			if doc.Status == models.StatusError {
				logger.Warn("watch import errored",
					zap.String("path", path),
					zap.String("error", doc.ErrorMessage))
			}
		},
		func(kbID, path string) {
			if err := removeByFilename(context.Background(), mgr, kbID, path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch) > 0 {
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(components.Manager, components.Retriever, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// removeByFilename deletes every document in the knowledge base whose filename
// matches the removed file. Documents carry filenames, not paths, so all
// same-named documents in the folder's knowledge base go.
func removeByFilename(ctx context.Context, mgr *manager.Manager, kbID, path string) error {
	docs, err := mgr.ListDocuments(ctx, kbID)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	for _, d := range docs {
		if d.Filename != name {
			continue
		}
		if err := mgr.DeleteDocument(ctx, d.ID); err != nil {
			return err
		}
	}
	return nil
}

func runKB() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kioku kb <create|list|delete> [flags] [args]")
		fmt.Println("  kioku kb create --name <name> --provider <id>   Create a knowledge base")
		fmt.Println("  kioku kb list                                   List knowledge bases")
		fmt.Println("  kioku kb delete <kb-id>                         Delete a knowledge base")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("kb", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	name := fs.String("name", "", "knowledge base name (create)")
	description := fs.String("description", "", "knowledge base description (create)")
	provider := fs.String("provider", "", "embedding provider id (create)")
	chunkSize := fs.Int("chunk-size", 0, "chunk size in characters (create, 0 = default)")
	chunkOverlap := fs.Int("chunk-overlap", 0, "chunk overlap in characters (create, 0 = default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[3:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	switch sub {
	case "create":
		if *name == "" || *provider == "" {
			fmt.Println("Usage: kioku kb create --name <name> --provider <embedding-provider-id>")
			os.Exit(1)
		}
		req := models.CreateKnowledgeBaseRequest{
			Name:               *name,
			Description:        *description,
			EmbeddingConfigRef: *provider,
			ChunkSize:          *chunkSize,
			ChunkOverlap:       *chunkOverlap,
		}
		var kb models.KnowledgeBase
		if err := postJSON(*serverURL+"/api/v1/knowledge-bases", req, &kb, http.StatusCreated); err != nil {
			fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteKnowledgeBases(os.Stdout, []*models.KnowledgeBase{&kb}, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "list":
		var kbs []*models.KnowledgeBase
		if err := getJSON(*serverURL+"/api/v1/knowledge-bases", &kbs); err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteKnowledgeBases(os.Stdout, kbs, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "delete":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kioku kb delete <kb-id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		if err := deleteHTTP(*serverURL + "/api/v1/knowledge-bases/" + id); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted: %s\n", id)
	default:
		fmt.Printf("Unknown kb subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	kbID := fs.String("kb", "", "knowledge base id")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if *kbID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: kioku import --kb <kb-id> <file>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad path: %v\n", err)
		os.Exit(1)
	}

	var doc models.Document
	url := fmt.Sprintf("%s/api/v1/knowledge-bases/%s/documents", *serverURL, *kbID)
	if err := postJSON(url, map[string]string{"file_path": path}, &doc, http.StatusCreated); err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocument(os.Stdout, &doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if doc.Status == models.StatusError {
		os.Exit(1)
	}
}

func runDocs() {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	kbID := fs.String("kb", "", "knowledge base id")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if *kbID == "" {
		fmt.Println("Usage: kioku docs --kb <kb-id>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	var docs []*models.Document
	url := fmt.Sprintf("%s/api/v1/knowledge-bases/%s/documents", *serverURL, *kbID)
	if err := getJSON(url, &docs); err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kioku query [flags] --kb <kb-id> <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kioku query --kb kb-123 machine learning
  kioku query --kb kb-123 "machine learning"     # same as above
  kioku query --kb kb-123 --mode vector neural networks
  kioku query --kb kb-123 --threshold 0.3 --top-k 10 your query
  kioku query --kb kb-123 --output json your query
`)
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's
// flag package stops at the first non-flag argument, so
// "kioku query some words --top-k 10" would otherwise leave --top-k unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery() {
	queryArgs := reorderArgs(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path (for direct storage mode and defaults)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	kbID := fs.String("kb", "", "knowledge base id")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	mode := fs.String("mode", "", "retrieval mode: vector, keyword, or hybrid (empty = config default)")
	threshold := fs.Float64("threshold", 0, "minimum score; candidates below it are dropped")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	if *kbID == "" || fs.NArg() < 1 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := models.RetrievalRequest{
		KBID:                *kbID,
		Query:               queryStr,
		TopK:                *topK,
		Mode:                models.RetrievalMode(*mode),
		SimilarityThreshold: *threshold,
	}
	// Unset request fields fall back to the config's retrieval defaults.
	if cfg, _, err := loadConfig(*configPath); err == nil {
		applyRetrievalDefaults(&req, &cfg.Retrieval)
	}

	if *serverURL != "" {
		// Use the HTTP API when the engine is running (avoids Bleve/SQLite lock conflict).
		var result models.RetrievalResult
		if err := postJSON(*serverURL+"/api/v1/retrieve", req, &result, http.StatusOK); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteRetrievalResult(os.Stdout, &result, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when the engine is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	result, err := components.Retriever.Retrieve(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRetrievalResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func applyRetrievalDefaults(req *models.RetrievalRequest, defaults *config.RetrievalConfig) {
	if req.TopK == 0 && defaults.DefaultTopK > 0 {
		req.TopK = defaults.DefaultTopK
	}
	if req.Mode == "" && defaults.DefaultMode != "" {
		req.Mode = models.RetrievalMode(defaults.DefaultMode)
	}
	if req.SimilarityThreshold == 0 {
		req.SimilarityThreshold = defaults.SimilarityThreshold
	}
}

func postJSON(url string, body any, out any, wantStatus int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func deleteHTTP(url string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Vectors   vector.Store
	Keywords  keyword.Index
	Registry  *embedding.Registry
	Manager   *manager.Manager
	Retriever *retriever.Retriever
}

func (c *Components) Close() {
	if c.Registry != nil {
		c.Registry.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	vectors, err := vector.NewSQLiteStore(store.DB())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	var keywords keyword.Index
	keywords, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		// The substring fallback keeps keyword retrieval working, with
		// cruder relevance, when the index cannot be opened.
		logger.Warn("keyword index unavailable, falling back to substring matching",
			zap.String("path", cfg.Storage.BleveIndexPath),
			zap.Error(err))
		keywords = keyword.NewSubstringIndex(store.DB())
	}

	registry := embedding.NewRegistry(cfg.Embedding.Providers, cfg.Embedding.CacheSize)

	mgrOpts := []manager.Option{}
	retOpts := []retriever.Option{}
	if debug {
		mgrOpts = append(mgrOpts, manager.WithLogger(logger))
		retOpts = append(retOpts, retriever.WithLogger(logger))
	}
	mgr := manager.New(store, vectors, keywords, registry, mgrOpts...)
	ret := retriever.New(store, vectors, keywords, registry, retOpts...)

	return &Components{
		Storage:   store,
		Vectors:   vectors,
		Keywords:  keywords,
		Registry:  registry,
		Manager:   mgr,
		Retriever: ret,
	}, nil
}

func printUsage() {
	fmt.Println(`kioku - Local retrieval engine for chat context

Usage:
  kioku serve [flags]                      Start the HTTP engine
  kioku kb <create|list|delete> [flags]    Manage knowledge bases
  kioku import --kb <id> <file>            Import a document
  kioku docs --kb <id>                     List documents in a knowledge base
  kioku query [flags] --kb <id> <query>    Retrieve chunks for a query
  kioku version                            Show version
  kioku help                               Show this help

Serve Flags:
  --config string    Config file path (default: ~/.kioku/config.yaml)
  --debug            Enable debug logging (watched folders, import pipeline, etc.)

KB Flags:
  --server string         Server URL (default: ` + defaultServerURL + `)
  --name string           Knowledge base name (create)
  --description string    Knowledge base description (create)
  --provider string       Embedding provider id from config (create)
  --chunk-size int        Chunk size in characters (create, 0 = default 1000)
  --chunk-overlap int     Chunk overlap in characters (create, 0 = default 200)
  --output string         Output format: text or json (default: text)

Query Flags:
  --config string      Config file path (for direct storage mode and defaults)
  --server string      Server URL (default: ` + defaultServerURL + `). Use empty (--server "") to use direct storage when the engine is not running.
  --kb string          Knowledge base id (required)
  --top-k int          Number of results, 1-20 (default from config, or 5)
  --mode string        Retrieval mode: vector, keyword, or hybrid (default from config, or hybrid)
  --threshold float    Minimum score; candidates below it are dropped
  --output string      Output format: text or json (default: text)

Examples:
  kioku serve
  kioku kb create --name "Research notes" --provider openai-small
  kioku kb list
  kioku import --kb kb-123 paper.pdf
  kioku query --kb kb-123 transformer attention heads
  kioku query --kb kb-123 --mode keyword --output json "exact phrase"
  kioku docs --kb kb-123
  kioku kb delete kb-123`)
}
