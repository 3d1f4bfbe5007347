// fulltextd is the admin gRPC front end for the full-text index storage
// engine (spec component C8's transport): it wires internal/config,
// internal/logger, internal/metrics, and internal/server.Server
// together, serves the admin RPCs on one port and the Prometheus/
// health/pprof surface on another, grounded on the teacher's own
// cmd/treestore/main.go startup shape (flag parsing, graceful
// shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/trmeister/fulltext2/internal/config"
	"github.com/trmeister/fulltext2/internal/logger"
	"github.com/trmeister/fulltext2/internal/metrics"
	"github.com/trmeister/fulltext2/internal/server"
)

func main() {
	fs := flag.NewFlagSet("fulltextd", flag.ExitOnError)
	port := fs.Int("port", 50051, "admin gRPC port")
	obsPort := fs.Int("observability-port", 9090, "metrics/health/pprof HTTP port")
	logLevel := fs.String("log-level", "info", "debug, info, warn, error")
	logPretty := fs.Bool("log-pretty", false, "pretty-print logs for local development")
	cfg := config.Flags(fs)
	fs.Parse(os.Args[1:])
	config.Set(*cfg)

	logger.InitGlobalLogger(logger.Config{Level: *logLevel, Pretty: *logPretty, WithCaller: true})
	log := logger.GetGlobalLogger()
	m := metrics.NewMetrics()

	log.LogServerStart(*port, "")

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal("listen").Err(err).Send()
		os.Exit(1)
	}

	adminServer := server.NewServer(m, log)
	defer adminServer.Close()

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(100*1024*1024),
		grpc.MaxSendMsgSize(100*1024*1024),
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)
	server.RegisterAdminServer(grpcServer, adminServer)
	reflection.Register(grpcServer)

	obsServer := server.NewObservabilityServer(*obsPort, log)
	go func() {
		if err := obsServer.Start(); err != nil {
			log.Error("observability server").Err(err).Send()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.LogServerShutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = obsServer.Shutdown(ctx)

		grpcServer.GracefulStop()
	}()

	log.LogServerReady(*port)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("serve").Err(err).Send()
		os.Exit(1)
	}
}
