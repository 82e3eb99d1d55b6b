package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain the sessions table",
	}
	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and revoked sessions older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			repo := repository.NewSessionRepo(db, utils.BcryptHasher{Cost: cfg.BcryptCost})
			n, err := repo.PurgeExpired(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d session(s)\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "keep rows newer than this")
	cmd.AddCommand(purge)
	return cmd
}
