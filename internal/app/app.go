package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"

	"tenkindex/features/filing"
	"tenkindex/features/job"
	"tenkindex/features/mcp"
	"tenkindex/features/search"
	"tenkindex/features/stats"
	"tenkindex/internal/adapter/pdf"
	"tenkindex/internal/config"
	facts "tenkindex/internal/filing"
	"tenkindex/internal/ingest"
	"tenkindex/internal/middleware"
	"tenkindex/internal/retrieval"
	"tenkindex/internal/worker"
)

// VectorStore is everything the app needs from the chunk index.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, docs []ingest.Document) error
	PruneChunks(ctx context.Context, ticker string, keep int) error
	DeleteByTicker(ctx context.Context, ticker string) error
	Search(ctx context.Context, query string, vector []float32, alpha float32, limit int, filters map[string]string) ([]retrieval.SearchResult, error)
	GetChunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error)
	CountChunks(ctx context.Context, ticker string) (int, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler        http.Handler
	FilingService  *filing.Service
	Pipeline       *ingest.Pipeline
	IngestConsumer *worker.IngestConsumer

	cfg     *config.Config
	records worker.RecordSaver
	closers []io.Closer
}

// New wires repositories, services and routes. Nothing here dials the
// network; the caller owns db, store and publisher.
func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	embedder Embedder,
	logger *slog.Logger,
) (*App, error) {
	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	pipeline := ingest.NewPipeline(pdf.NewExtractor(), extractor, embedder, vecStore, cfg.PipelineOptions())

	// Feature: Filing
	filingRepo := filing.NewPostgresRepo(db)
	filingService := filing.NewService(filingRepo, taskPub, vecStore, logger)
	filingHandler := filing.NewHandler(filingService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(filingRepo, jobRepo, vecStore)

	// Feature: Retrieval
	var closers []io.Closer
	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		closers = append(closers, closer)
	}
	retrievalService := retrieval.NewService(embedder, vecStore, queryLogger)
	searchHandler := search.NewHandler(retrievalService)
	mcpHandler := mcp.NewHandler(retrievalService, filingService)

	mux := http.NewServeMux()

	mux.Handle("POST /filings", route(filingHandler.Create))
	mux.Handle("GET /filings", route(filingHandler.List))
	mux.Handle("GET /filings/{ticker}", route(filingHandler.Get))
	mux.Handle("DELETE /filings/{ticker}", route(filingHandler.Delete))
	mux.Handle("GET /filings/{ticker}/comparables", route(filingHandler.Comparables))
	mux.Handle("GET /filings/{ticker}/chunks", route(filingHandler.Chunks))

	mux.Handle("POST /search", route(searchHandler.Search))

	mux.Handle("GET /jobs/failed", route(jobHandler.List))
	mux.Handle("POST /jobs/{id}/retry", route(jobHandler.Retry))
	mux.Handle("DELETE /jobs/{id}", route(jobHandler.Dismiss))

	mux.Handle("GET /stats", route(statsHandler.GetStats))

	mux.Handle("/mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", route(mcpHandler.HandleSSE))
	mux.Handle("POST /mcp/messages", route(mcpHandler.HandleMessage))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	ingestConsumer := worker.NewIngestConsumer(pipeline, filingRepo, jobRepo, taskPub)

	return &App{
		Handler:        mux,
		FilingService:  filingService,
		Pipeline:       pipeline,
		IngestConsumer: ingestConsumer,
		cfg:            cfg,
		records:        filingRepo,
		closers:        closers,
	}, nil
}

// NewExtractor builds the fact extractor from the configured pattern file,
// or from the built-in table when none is set.
func NewExtractor(cfg *config.Config) (*facts.Extractor, error) {
	if cfg.PatternFile == "" {
		return facts.NewExtractor(facts.DefaultLibrary()), nil
	}
	lib, err := facts.LoadLibrary(cfg.PatternFile)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	slog.Info("pattern library loaded", "path", cfg.PatternFile)
	return facts.NewExtractor(lib), nil
}

// IngestFile indexes one filing in the calling goroutine and stores its
// record, bypassing the queue.
func (a *App) IngestFile(ctx context.Context, path, companyName, ticker string) (*ingest.Result, error) {
	res, err := a.Pipeline.Ingest(ctx, path, companyName, ticker)
	if err != nil {
		return res, err
	}
	if err := a.records.SaveRecord(ctx, res.Record, res.Chunks, path); err != nil {
		return res, fmt.Errorf("save record: %w", err)
	}
	return res, nil
}

// ExtractFile reads the facts of one filing without touching any backing
// service.
func ExtractFile(ctx context.Context, cfg *config.Config, path, companyName, ticker string) (*facts.Record, error) {
	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := pdf.NewExtractor().ExtractText(ctx, path)
	if err != nil {
		return nil, err
	}
	if companyName == "" || ticker == "" {
		name, sym := extractor.Identify(raw)
		if companyName == "" {
			companyName = name
		}
		if ticker == "" {
			ticker = sym
		}
	}
	rec := extractor.Extract(raw, companyName, strings.ToUpper(ticker))
	facts.Derive(rec)
	return rec, nil
}

func route(h http.HandlerFunc) http.Handler {
	return middleware.CorrelationID(enableCORS(h))
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.CorrelationHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// StartWorker subscribes the ingestion consumer to the filing topic. The
// returned consumer must be stopped by the caller.
func (a *App) StartWorker() (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = a.cfg.IngestionConcurrency
	nsqCfg.MaxAttempts = worker.MaxAttempts
	// ingestion of a large filing outlives the default 60s message timeout
	nsqCfg.MsgTimeout = worker.IngestTimeout

	consumer, err := nsq.NewConsumer(config.TopicIngestFiling, config.ChannelIngestWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("create ingest consumer: %w", err)
	}
	consumer.AddConcurrentHandlers(a.IngestConsumer, a.cfg.IngestionConcurrency)

	// without lookupd the worker reads from the one nsqd it publishes to
	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect ingest consumer: %w", err)
	}
	slog.Info("ingest worker started", "topic", config.TopicIngestFiling, "concurrency", a.cfg.IngestionConcurrency)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
