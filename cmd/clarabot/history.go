package main

import (
	"fmt"

	"clarabot/internal/config"
	"clarabot/internal/store"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Inspect the conversation log",
		Long: `With no arguments, lists known conversations. With a conversation ID,
prints its most recent turns in chronological order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}

			log, err := store.NewSQLiteLog(cfg.History.DBPath, logger)
			if err != nil {
				return fmt.Errorf("conversation log: %w", err)
			}
			defer log.Close()

			ctx := cmd.Context()

			if len(args) == 0 {
				ids, err := log.Conversations(ctx, limit)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Println("No conversations recorded.")
					return nil
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			}

			turns, err := log.RecentTurns(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				fmt.Printf("No turns for conversation %s.\n", args[0])
				return nil
			}
			// RecentTurns is newest-first; print oldest-first.
			for i := len(turns) - 1; i >= 0; i-- {
				t := turns[i]
				fmt.Printf("[%s] %-9s %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"), t.Role, t.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	return cmd
}
