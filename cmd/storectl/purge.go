package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/snippet-store/internal/service"
)

// RETENTION:
// Notifications and access logs are only useful for a while. purge
// deletes rows older than the given ages; a zero age skips that table.
func newPurgeCmd(opts *rootOptions) *cobra.Command {
	var notificationAge, accessLogAge time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old notifications and access logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if notificationAge < 0 || accessLogAge < 0 {
				return fmt.Errorf("ages must not be negative")
			}
			if notificationAge == 0 && accessLogAge == 0 {
				return fmt.Errorf("nothing to purge: set --notifications or --access-logs")
			}
			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				out := cmd.OutOrStdout()
				if notificationAge > 0 {
					svc := service.NewNotificationService(e.repos.Notifications, e.repos.NotificationSettings, e.logger)
					n, err := svc.Purge(ctx, notificationAge)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "purged %d notifications older than %s\n", n, notificationAge)
				}
				if accessLogAge > 0 {
					svc := service.NewAccessLogService(e.repos.AccessLogs, e.logger)
					n, err := svc.Purge(ctx, accessLogAge)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "purged %d access logs older than %s\n", n, accessLogAge)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&notificationAge, "notifications", 0, "Purge notifications older than this (e.g. 720h)")
	cmd.Flags().DurationVar(&accessLogAge, "access-logs", 0, "Purge access logs older than this (e.g. 2160h)")
	return cmd
}
