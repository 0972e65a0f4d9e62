package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-store/internal/model"
)

// Users belong to the wider application; these commands exist to seed and
// inspect the rows that reports and messages point at.
func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Seed and inspect users",
	}

	var email, avatar string
	add := &cobra.Command{
		Use:   "add <login>",
		Short: "Create a user and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				u := model.User{Login: args[0], Email: email, AvatarURL: avatar}
				if err := e.repos.Users.Create(ctx, &u); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&email, "email", "", "Email address")
	add.Flags().StringVar(&avatar, "avatar", "", "Avatar URL")
	cmd.AddCommand(add)

	var format string
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				u, err := e.repos.Users.GetByID(ctx, id)
				if err != nil {
					return err
				}
				if format == "json" {
					return outputJSON(cmd, u)
				}
				t := newTable(cmd)
				t.AppendRows([]table.Row{
					{"ID", u.ID},
					{"Login", u.Login},
					{"Email", u.Email},
					{"Avatar", u.AvatarURL},
					{"Created", u.CreatedAt.Format("2006-01-02 15:04:05")},
				})
				t.Render()
				return nil
			})
		},
	}
	get.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.AddCommand(get)

	return cmd
}
