package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/config"
	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/logging"
	"github.com/ledgerflow/ingestor/internal/replay"
)

var (
	replayStatus        string
	replayDeadLetterPath string
	replayAuditPath      string
	replayClaimDBPath    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-claim dead-lettered documents in the claim store",
	Long: "replay reads dead-letter entries matching --status, re-claims each " +
		"one in the claim store under this worker's id, and appends one " +
		"audit line per entry to --audit-path. A re-claimed document stays " +
		"CLAIMED; poll-once reports it as already claimed and skips it.",
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayStatus, "status", "", "dead letter status to replay (FAILED or REVIEW_REQUIRED); empty replays all")
	replayCmd.Flags().StringVar(&replayDeadLetterPath, "dead-letter-path", "logs/dead_letter.jsonl", "path to the dead letter JSONL log")
	replayCmd.Flags().StringVar(&replayAuditPath, "audit-path", "logs/replay_audit.jsonl", "path to append replay audit events to")
	replayCmd.Flags().StringVar(&replayClaimDBPath, "claim-db-path", "", "override the claim store database path (defaults to CLAIM_DB_PATH)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayStatus != "" && replayStatus != "FAILED" && replayStatus != "REVIEW_REQUIRED" {
		return fmt.Errorf("--status must be FAILED or REVIEW_REQUIRED, got %q", replayStatus)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)

	dbPath := cfg.Claim.DBPath
	if replayClaimDBPath != "" {
		dbPath = replayClaimDBPath
	}

	store, err := claimstore.New(claimstore.Config{DBPath: dbPath, CacheSize: cfg.Claim.CacheSize})
	if err != nil {
		return fmt.Errorf("open claim store: %w", err)
	}
	defer store.Close()

	dl, err := deadletter.New(replayDeadLetterPath)
	if err != nil {
		return fmt.Errorf("open dead letter log: %w", err)
	}

	summary, err := replay.Run(context.Background(), dl, store, replay.Options{
		Status:    replayStatus,
		AuditPath: replayAuditPath,
		OwnerID:   cfg.Server.ResolvedWorkerID(),
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	log.Info().
		Int("queued", summary.Queued).
		Int("skipped_processed", summary.SkippedProcessed).
		Int("skipped_invalid", summary.SkippedInvalid).
		Msg("replay pass complete")

	fmt.Printf("queued=%d skipped_processed=%d skipped_invalid=%d\n",
		summary.Queued, summary.SkippedProcessed, summary.SkippedInvalid)

	return nil
}
