package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sas-token-service/config"
	"sas-token-service/internal/domain"
)

// newHistoryCmd はアカウントごとの発行履歴を表示するコマンドを生成する。
func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var account string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent SAS issuances for a storage account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}

			service, cleanup, err := newSASService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := service.ListIssuances(cmd.Context(), account, limit)
			if err != nil {
				if errors.Is(err, domain.ErrAuditStoreDisabled) {
					return fmt.Errorf("%w: set DATABASE_URL to enable issuance history", err)
				}
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tCONTAINER\tSIGNED START\tSIGNED EXPIRY\tISSUED AT")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Container, r.SignedStart, r.SignedExpiry, r.IssuedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Storage account name (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")
	cmd.MarkFlagRequired("account")
	return cmd
}
