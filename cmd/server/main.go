// Command server runs the storage engine behind a TCP line protocol:
// one goroutine per connection, dispatching against a single shared
// engine instance.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/lsmtree/internal/config"
	"github.com/dd0wney/lsmtree/internal/protocol"
	"github.com/dd0wney/lsmtree/pkg/lsm"
	"github.com/dd0wney/lsmtree/pkg/logging"
	"github.com/dd0wney/lsmtree/pkg/metrics"
)

func main() {
	addr := flag.String("addr", ":4040", "listen address")
	dataDir := flag.String("data-dir", "./data", "data directory")
	configPath := flag.String("config", "", "optional config file (yaml/toml/json, hot-reloaded)")
	flag.Parse()

	logger := logging.NewDefaultLogger()
	reg := metrics.NewRegistry()

	cfg := lsm.DefaultEngineConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", logging.Error(err))
			os.Exit(1)
		}
		cfg = loaded.Engine
		if loaded.DataDir != "" {
			*dataDir = loaded.DataDir
		}
	}

	engine, err := lsm.NewEngine(*dataDir, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to create engine", logging.Error(err))
		os.Exit(1)
	}
	if err := engine.Recover(); err != nil {
		logger.Warn("recovery scan failed", logging.Error(err))
	}
	engine.StartBackgroundWorkers()
	defer engine.StopBackgroundWorkers()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("failed to listen", logging.Error(err), logging.String("addr", *addr))
		os.Exit(1)
	}
	defer listener.Close()

	logger.Info("server started", logging.String("addr", *addr), logging.Path(*dataDir))

	go acceptLoop(listener, engine, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("server shutting down")
}

func acceptLoop(listener net.Listener, engine *lsm.Engine, logger logging.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("accept failed", logging.Error(err))
			return
		}
		go handleConnection(conn, engine, logger)
	}
}

func handleConnection(conn net.Conn, engine *lsm.Engine, logger logging.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Split(protocol.ScanFrames)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Text()
		response, shouldClose := protocol.Dispatch(engine, line)
		if _, err := fmt.Fprintf(writer, "%s\r\n", response); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
		if shouldClose {
			return
		}
	}
}
