package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"ledgerbook/api/grpcserver"
	"ledgerbook/config"
	"ledgerbook/domain/capability"
	"ledgerbook/infra/kafka"
	"ledgerbook/infra/logging"
	"ledgerbook/infra/store"
	entrywal "ledgerbook/infra/wal/entry"
	"ledgerbook/jobs/broadcaster"
	"ledgerbook/service"
)

func main() {
	path := flag.String("config", os.Getenv("LEDGERBOOK_CONFIG"), "path to the YAML config")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Store ----------------

	st, err := store.Open(store.Options{Dir: cfg.Store.Dir})
	if err != nil {
		return err
	}
	defer st.Close()

	// ---------------- Entry WAL ----------------

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		SyncEveryWrite:  cfg.WAL.SyncEveryWrite,
	})
	if err != nil {
		return fmt.Errorf("entry WAL init failed: %w", err)
	}
	defer entryWAL.Close()

	// ---------------- Service ----------------

	root, err := cfg.RootAddress()
	if err != nil {
		return err
	}
	svc, err := service.New(service.Options{
		Store:     st,
		WAL:       entryWAL,
		WALDir:    cfg.WAL.Dir,
		Authority: capability.NewAuthority(root),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	// ---------------- WAL REPLAY ----------------

	if _, err := svc.Replay(ctx); err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}

	// ---------------- Background Jobs ----------------

	svc.StartCompactionJob(ctx, cfg.CompactionInterval)
	if cfg.Store.CheckpointDir != "" {
		svc.StartSnapshotJob(ctx, cfg.Store.CheckpointDir, cfg.Store.CheckpointInterval)
	}

	if pub, err := newPublisher(cfg); err != nil {
		return err
	} else if pub != nil {
		bc := broadcaster.New(st.Outbox(), pub, broadcaster.Config{
			Interval:   cfg.Kafka.Interval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log)
		bc.Start(ctx)
		defer bc.Close()
	} else {
		log.Warn("no kafka driver configured, events stay in the outbox")
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc, log))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	log.Info("ledgerbook running",
		zap.String("addr", cfg.GRPC.Addr),
		zap.Stringer("root", root),
	)
	return grpcSrv.Serve(lis)
}

func newPublisher(cfg *config.Config) (broadcaster.Publisher, error) {
	switch cfg.Kafka.Driver {
	case "kafka-go":
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "sarama":
		return kafka.NewSaramaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	return nil, nil
}
