// Command approvalsd is the HTTP daemon entrypoint: loads
// configuration, wires the stores, engine, and background loops
// (placement retrier, operator digest), and serves the chi-routed
// panel API until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/archive"
	"silexa/approvals/internal/comments"
	"silexa/approvals/internal/config"
	"silexa/approvals/internal/digest"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/engine"
	"silexa/approvals/internal/httpapi"
	"silexa/approvals/internal/identity"
	"silexa/approvals/internal/metadata"
	"silexa/approvals/internal/notify"
	"silexa/approvals/internal/pathresolver"
	"silexa/approvals/internal/placement"
)

func main() {
	configPath := flag.String("config", "", "path to an optional TOML config file")
	flag.Parse()

	logger := log.New(os.Stdout, "approvalsd: ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	resolver := pathresolver.New(pathresolver.Config{
		NetworkRoot:   cfg.NetworkRoot,
		LocalFallback: cfg.LocalFallback,
		ProjectRoot:   cfg.ProjectRoot,
		StagingRoot:   cfg.StagingRoot,
		MetadataRoot:  cfg.MetadataRoot,
		ProbeCacheTTL: time.Duration(cfg.ProbeCacheSeconds) * time.Second,
	})

	approvalsRoot, err := resolver.Resolve(pathresolver.RootQueue)
	if err != nil {
		logger.Fatalf("resolve queue root: %v", err)
	}
	notifyRoot, err := resolver.Resolve(pathresolver.RootNotify)
	if err != nil {
		logger.Fatalf("resolve notify root: %v", err)
	}
	metadataRoot, err := resolver.Resolve(pathresolver.RootMetadata)
	if err != nil {
		logger.Fatalf("resolve metadata root: %v", err)
	}
	projectRoot, err := resolver.Resolve(pathresolver.RootProject)
	if err != nil {
		logger.Fatalf("resolve project root: %v", err)
	}
	stagingRoot, err := resolver.Resolve(pathresolver.RootStaging)
	if err != nil {
		logger.Fatalf("resolve staging root: %v", err)
	}

	approvalsStore, err := docstore.New(approvalsRoot, logger, 64)
	if err != nil {
		logger.Fatalf("open approvals store: %v", err)
	}
	commentsStore, err := docstore.New(filepath.Join(approvalsRoot, "comments"), logger, 0)
	if err != nil {
		logger.Fatalf("open comments store: %v", err)
	}
	notifyStore, err := docstore.New(notifyRoot, logger, 0)
	if err != nil {
		logger.Fatalf("open notify store: %v", err)
	}
	metadataStore, err := docstore.New(metadataRoot, logger, 0)
	if err != nil {
		logger.Fatalf("open metadata store: %v", err)
	}

	identityProvider, err := identity.LoadFileProvider(cfg.IdentityProviderSource)
	if err != nil {
		logger.Fatalf("load identity provider: %v", err)
	}

	repo := approval.NewRepository(approvalsStore, logger)
	archiveStore := archive.New(approvalsStore, cfg.ArchiveCap)
	metaStore := metadata.New(metadataStore, projectRoot)
	commentStore := comments.New(commentsStore)
	placementPipeline := placement.New(approvalsStore, projectRoot, stagingRoot)

	var pushSink notify.PushSink
	if cfg.NotifyWebhookURL != "" {
		pushSink = notify.NewWebhookSink(cfg.NotifyWebhookURL, logger)
	} else if cfg.NotifyTelegramToken != "" {
		sink, err := notify.NewTelegramSink(cfg.NotifyTelegramToken, cfg.NotifyTelegramChatID, logger)
		if err != nil {
			logger.Printf("telegram sink disabled: %v", err)
		} else {
			pushSink = sink
		}
	}
	notifyService := notify.New(notifyStore, pushSink)

	eng := engine.New(engine.Deps{
		Repo:      repo,
		Identity:  identityProvider,
		Archive:   archiveStore,
		Metadata:  metaStore,
		Notify:    notifyService,
		Comments:  commentStore,
		Placement: placementPipeline,
		Resolver:  resolver,
		Policy: engine.Policy{
			MaxOpenSubmissionsPerUser: cfg.MaxOpenSubmissionsPerUser,
			AllowedContentTypes:       cfg.AllowedContentTypes,
		},
		Log: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retrier := placement.NewRetrier(placementPipeline, eng, time.Duration(cfg.RetryIntervalSeconds)*time.Second, logger)
	go retrier.Run(ctx)

	if textSink, ok := pushSink.(interface{ SendText(string) error }); ok {
		d := digest.New(eng, placementPipeline, textSink, cfg.DigestInterval, logger)
		go d.Run(ctx)
	}

	srv := httpapi.New(eng, logger)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (degraded=%v)", cfg.HTTPAddr, resolver.Degraded())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}
