package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides ARENA_ADDR)")
	dbFlag := flag.String("db", "", "SQLite database path (overrides ARENA_DB)")
	flag.Parse()

	cfg, err := LoadConfig()
	if err != nil {
		panic("config: " + err.Error())
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	hub := NewHub(&cfg, db, logger)
	go hub.Run()

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub)}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")
	hub.Shutdown()
	server.Close()
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}
