package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steemit/hivemind-indexer/internal/api"
	"github.com/steemit/hivemind-indexer/internal/cache"
	"github.com/steemit/hivemind-indexer/internal/db"
	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/indexer"
	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/logging"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Follow the chain and index irreversible blocks",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().Int64("test-max-block", 0, "stop once this block has been indexed")
}

func runSync(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("test-max-block") {
		cfg.Indexer.TestMaxBlock, _ = cmd.Flags().GetInt64("test-max-block")
	}

	logger := logging.GetLogger()
	logger.Info("Starting Hivemind Indexer")

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(); err != nil {
			return err
		}
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	client, err := steem.New(&cfg.Steem)
	if err != nil {
		return err
	}

	repo := db.NewRepository(database.DB)
	blocks := db.NewBlockRepository(repo)

	postIDs := db.NewPostRepository(repo)
	ids, err := idcache.New(cfg.Indexer.IDCacheSize, postIDs,
		idcache.WithShared(redisCache, cfg.Redis.IDTTL),
		idcache.WithLogger(logging.WithComponent("idcache")),
	)
	if err != nil {
		return err
	}

	accountStore := db.NewAccountRepository(repo)
	notifier := indexer.NewNotifyIndexer(db.NewNotificationRepository(repo), logging.WithComponent("notify-indexer"))
	accounts := indexer.NewAccountIndexer(accountStore, logging.WithComponent("account-indexer"))
	communities := indexer.NewCommunityIndexer(accountStore, db.NewCommunityRepository(repo), notifier, logging.WithComponent("community-indexer"))
	posts := indexer.NewPostIndexer(indexer.PostIndexerDeps{
		Store:    db.NewPostStore(repo),
		Data:     db.NewPostDataRepository(repo),
		Tags:     db.NewTagRepository(repo),
		Feed:     db.NewFeedCacheRepository(repo),
		Policy:   communities,
		Notifier: notifier,
		IDs:      ids,
		Loader:   postIDs,
	}, cfg.Indexer.PayoutBatch, logging.WithComponent("post-indexer"))
	votes := indexer.NewVoteIndexer(db.NewVoteRepository(repo), cfg.Indexer.VoteFlushBatch, logging.WithComponent("vote-indexer"))

	processor := indexer.NewBlockProcessor(accounts, communities, posts, votes, logging.WithComponent("block-processor"))
	syncer := indexer.NewSync(&cfg.Indexer, client, blocks, processor, votes, logging.WithComponent("sync"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Telemetry.PrometheusEnabled {
		checks := map[string]api.HealthChecker{"database": database}
		if cfg.Redis.Enabled {
			checks["redis"] = redisCache
		}
		router := api.NewRouter(api.RouterDeps{Blocks: blocks, Schema: database, Checks: checks})
		engine := api.NewEngine(router, strings.EqualFold(cfg.Logging.Level, "debug"))
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.PrometheusPort)
		g.Go(func() error {
			return api.Serve(gctx, addr, engine)
		})
	}

	g.Go(func() error {
		// Stop the status server once the sync loop ends.
		defer stop()
		return syncer.Run(gctx)
	})

	err = g.Wait()
	stats := ids.Stats()
	logger.Info("Indexer exited",
		zap.Int64("id_cache_hits", stats.Hits),
		zap.Int64("id_cache_misses", stats.Misses),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
