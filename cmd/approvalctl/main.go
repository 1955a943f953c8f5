// Command approvalctl is the operator CLI: queue statistics, the
// one-shot legacy comment migration, and a manual placement-retry
// trigger.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/archive"
	"silexa/approvals/internal/comments"
	"silexa/approvals/internal/config"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/migrate"
	"silexa/approvals/internal/pathresolver"
	"silexa/approvals/internal/placement"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "approvalctl",
		Short: "Operator CLI for the file approval engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional TOML config file")

	root.AddCommand(statsCmd(), migrateCommentsCmd(), retryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadResolver() (*pathresolver.Resolver, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	resolver := pathresolver.New(pathresolver.Config{
		NetworkRoot:   cfg.NetworkRoot,
		LocalFallback: cfg.LocalFallback,
		ProjectRoot:   cfg.ProjectRoot,
		StagingRoot:   cfg.StagingRoot,
		MetadataRoot:  cfg.MetadataRoot,
		ProbeCacheTTL: time.Duration(cfg.ProbeCacheSeconds) * time.Second,
	})
	return resolver, cfg, nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print open submission counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, _, err := loadResolver()
			if err != nil {
				return err
			}
			approvalsRoot, err := resolver.Resolve(pathresolver.RootQueue)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "approvalctl: ", log.LstdFlags)
			store, err := docstore.New(approvalsRoot, logger, 0)
			if err != nil {
				return err
			}
			repo := approval.NewRepository(store, logger)
			subs, err := repo.List()
			if err != nil {
				return err
			}
			counts := map[approval.State]int{}
			for _, s := range subs {
				counts[s.State]++
			}
			for state, n := range counts {
				fmt.Printf("%-28s %d\n", state, n)
			}
			if resolver.Degraded() {
				fmt.Println("warning: path resolver is running in degraded mode")
			}
			return nil
		},
	}
}

func migrateCommentsCmd() *cobra.Command {
	var legacyPath, submissionID string
	cmd := &cobra.Command{
		Use:   "migrate-comments",
		Short: "Merge a legacy approval_comments.json into comments/{id}.json once",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, _, err := loadResolver()
			if err != nil {
				return err
			}
			approvalsRoot, err := resolver.Resolve(pathresolver.RootQueue)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "approvalctl: ", log.LstdFlags)
			store, err := docstore.New(filepath.Join(approvalsRoot, "comments"), logger, 0)
			if err != nil {
				return err
			}
			commentStore := comments.New(store)
			n, err := migrate.CommentsOnce(commentStore, legacyPath, submissionID)
			if err != nil {
				return err
			}
			fmt.Printf("merged %d legacy comments for submission %s\n", n, submissionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&legacyPath, "legacy-path", "", "path to the legacy approval_comments.json")
	cmd.Flags().StringVar(&submissionID, "submission-id", "", "submission id the legacy document belongs to")
	cmd.MarkFlagRequired("legacy-path")
	cmd.MarkFlagRequired("submission-id")
	return cmd
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-placements",
		Short: "Run one sweep of the placement retrier immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, cfg, err := loadResolver()
			if err != nil {
				return err
			}
			approvalsRoot, err := resolver.Resolve(pathresolver.RootQueue)
			if err != nil {
				return err
			}
			projectRoot, err := resolver.Resolve(pathresolver.RootProject)
			if err != nil {
				return err
			}
			stagingRoot, err := resolver.Resolve(pathresolver.RootStaging)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "approvalctl: ", log.LstdFlags)
			store, err := docstore.New(approvalsRoot, logger, 0)
			if err != nil {
				return err
			}
			archiveStore := archive.New(store, cfg.ArchiveCap)
			pipeline := placement.New(store, projectRoot, stagingRoot)
			source := &archiveSource{archiveStore: archiveStore}

			before, err := source.PendingPlacements()
			if err != nil {
				return err
			}
			retrier := placement.NewRetrier(pipeline, source, 0, logger)
			retrier.SweepOnce()
			after, err := source.PendingPlacements()
			if err != nil {
				return err
			}
			fmt.Printf("%d pending before sweep, %d pending after\n", len(before), len(after))
			return nil
		},
	}
}

// archiveSource adapts archive.Store to placement.SubmissionSource for
// the CLI's one-shot sweep, mirroring internal/engine's equivalent
// adapter methods.
type archiveSource struct {
	archiveStore *archive.Store
}

func (a *archiveSource) PendingPlacements() ([]approval.Submission, error) {
	records, err := a.archiveStore.List(archive.KindApproved)
	if err != nil {
		return nil, err
	}
	var out []approval.Submission
	for _, r := range records {
		if r.Submission.PlacementOutcome == approval.PlacementStaged ||
			r.Submission.PlacementOutcome == approval.PlacementManualRequested {
			out = append(out, r.Submission)
		}
	}
	return out, nil
}

func (a *archiveSource) PromoteToDelivered(id, targetPath string) error {
	return a.archiveStore.UpdateRecord(archive.KindApproved, id, func(r *archive.Record) {
		r.Submission.PlacementOutcome = approval.PlacementDelivered
		r.Submission.PlacementTargetPath = targetPath
	})
}
