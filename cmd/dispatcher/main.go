package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/agent"
	"github.com/feichai0017/pdf-dispatcher/internal/service/batch"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/sink"
	"github.com/feichai0017/pdf-dispatcher/pkg/source"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("DISPATCHER_CONFIG_FILE"), "YAML configuration file")
	dir := flag.String("dir", "", "directory of PDFs to dispatch (overrides source_dir)")
	prefix := flag.String("prefix", "", "storage prefix to dispatch instead of a directory")
	recursive := flag.Bool("recursive", false, "descend into subdirectories of -dir")
	dedup := flag.Bool("dedup-images", false, "store identical extracted images once")
	reportPath := flag.String("report", "", "write the batch report as JSON to this file")
	flag.Parse()

	dc, err := cfg.LoadDispatcherConfig(*configPath)
	if err != nil {
		panic(err)
	}
	if *dir != "" {
		dc.SourceDir = *dir
	}
	if *prefix != "" {
		dc.SourcePrefix = *prefix
	}

	log, err := logger.NewLogger(
		logger.WithLevel(dc.LogLevel),
		logger.WithEncoding(dc.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/dispatcher.log"}),
		logger.WithInitialFields(map[string]interface{}{"version": version.Version}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(ctx, storage.StorageType(dc.Storage), dc.LocalRoot, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}

	vc := validator.DefaultValidatorConfig()
	vc.MaxFileSize = dc.MaxFileSize
	v := validator.NewDocumentValidator(log, vc)

	var src source.Collection
	if dc.SourcePrefix != "" {
		src = source.NewStorageCollection(store, dc.SourcePrefix, v, log)
	} else {
		var opts []source.DirectoryOption
		if *recursive {
			opts = append(opts, source.Recursive())
		}
		src, err = source.NewDirectoryCollection(dc.SourceDir, v, log, opts...)
		if err != nil {
			log.Fatal("Failed to open source directory", logger.Error(err))
		}
	}

	pipeline, err := agent.NewEngineFactory(dc, log).NewPipeline(ctx)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", logger.Error(err))
	}

	var images sink.ImageSink = sink.NewStorageSink(store, dc.ImagePrefix, log)
	if *dedup {
		images = sink.Deduplicate(images)
	}

	opts := batch.RunOptions{
		StartPage:       dc.StartPage,
		Debug:           dc.Debug,
		Concurrency:     dc.Concurrency,
		DocumentTimeout: dc.DocumentTimeout,
	}
	if dc.ResultPrefix != "" {
		opts.Results = batch.NewStorageResultWriter(store, dc.ResultPrefix)
	}

	report, err := batch.NewRunner(pipeline, log).Run(ctx, src, images, opts)
	if err != nil {
		log.Fatal("Batch failed", logger.Error(err))
	}

	if *reportPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal("Failed to encode report", logger.Error(err))
		}
		if err := os.WriteFile(*reportPath, data, 0644); err != nil {
			log.Fatal("Failed to write report", logger.Error(err))
		}
	}

	if report.Failed > 0 {
		log.Sync()
		os.Exit(1)
	}
}
