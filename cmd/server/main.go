package main

import (
	"context"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/factory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server represents the HTTP server around a Searcher
type Server struct {
	searcher eavsearch.Searcher
	db       eavsearch.Database
	search   eavsearch.SearchConfig
	mux      *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(searcher eavsearch.Searcher, db eavsearch.Database, search eavsearch.SearchConfig) *Server {
	return &Server{
		searcher: searcher,
		db:       db,
		search:   search,
		mux:      http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/api/v1/search", s.handleSearch)
	s.mux.HandleFunc("/api/v1/search/count", s.handleCount)
	s.mux.HandleFunc("/api/v1/compile", s.handleCompile)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	config, err := eavsearch.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx := context.Background()
	db, closeDB, err := factory.NewDatabase(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to open database: %v", err)
	}
	defer closeDB()

	searcher, err := factory.NewSearcherWithConfig(ctx, config, db)
	if err != nil {
		sugar.Fatalf("failed to create searcher: %v", err)
	}

	server := NewServer(searcher, db, config.Search)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

func newLogger(cfg eavsearch.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
