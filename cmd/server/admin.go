package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/practicechat/internal/app"
	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/config"
	"github.com/vovakirdan/practicechat/internal/store/sqlite"
)

// withStore opens the configured database for one-shot administrative commands.
func withStore(ctx context.Context, root *rootOptions, dbPath string, fn func(context.Context, config.Config, *sqlite.SQLiteStore) error) error {
	cfg, _, err := root.load(config.Config{DatabasePath: dbPath})
	if err != nil {
		return err
	}
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(ctx, cfg, st)
}

func newMemberCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage the local practice roster",
	}

	var (
		practiceID int64
		dbPath     string
	)
	add := &cobra.Command{
		Use:   "add <display-name>",
		Short: "Add a member to a practice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if practiceID <= 0 {
				return fmt.Errorf("--practice is required")
			}
			return withStore(cmd.Context(), root, dbPath, func(ctx context.Context, _ config.Config, st *sqlite.SQLiteStore) error {
				m, err := st.CreateMember(ctx, practiceID, args[0])
				if err != nil {
					return fmt.Errorf("create member: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "member %d added to practice %d\n", m.ID, m.PracticeID)
				return nil
			})
		},
	}
	add.Flags().Int64Var(&practiceID, "practice", 0, "practice id")
	add.Flags().StringVar(&dbPath, "db", "", "SQLite database path")

	list := &cobra.Command{
		Use:   "list <practice-id>",
		Short: "List a practice's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("practice id: %w", err)
			}
			return withStore(cmd.Context(), root, dbPath, func(ctx context.Context, _ config.Config, st *sqlite.SQLiteStore) error {
				members, err := st.ListPracticeMembers(ctx, pid)
				if err != nil {
					return fmt.Errorf("list members: %w", err)
				}
				for _, m := range members {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", m.ID, m.DisplayName)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&dbPath, "db", "", "SQLite database path")

	cmd.AddCommand(add, list)
	return cmd
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "token <member-id>",
		Short: "Issue a session token for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("member id: %w", err)
			}
			return withStore(cmd.Context(), root, dbPath, func(ctx context.Context, cfg config.Config, st *sqlite.SQLiteStore) error {
				token, err := auth.NewService(st, app.JWTConfig(&cfg)).IssueToken(ctx, memberID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	return cmd
}
