package main

import (
	"fmt"

	"github.com/spf13/cobra"

	redisClient "github.com/aaronwang/agreeconnect/api-gateway/internal/redis"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/service"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/logging"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [listing-id]",
	Short: "Recompute listing prices from the bid ledger and repair drift",
	Long: `Recompute the current price of one listing, or of every listing when no
id is given, from its active bids. Drifted prices are rewritten and the
repaired state is mirrored to Redis. The server must not be running, since
the store is opened exclusively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.NewDefaultLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	redis, err := redisClient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()

	svc := service.NewBiddingService(st, service.WithBroadcaster(redis), service.WithLogger(logger))
	defer svc.Wait()

	ctx := cmd.Context()
	if len(args) == 1 {
		repaired, err := svc.ReconcileListing(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "listing %s repaired=%t\n", args[0], repaired)
		return nil
	}

	repaired, err := svc.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "repaired %d listings\n", repaired)
	return nil
}
