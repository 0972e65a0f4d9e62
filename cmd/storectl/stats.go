package main

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

type statsOutput struct {
	Reports    *model.ReportStats    `json:"reports"`
	Messages   *model.MessageStats   `json:"messages"`
	AccessLogs *model.AccessLogStats `json:"accessLogs"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise reports, messages and requests",
		Long:  "stats aggregates in the database; with --since only rows created in that window are counted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			var window repository.TimeRange
			if since > 0 {
				from := time.Now().UTC().Add(-since)
				window.From = &from
			}

			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				var out statsOutput
				var err error
				if out.Reports, err = e.moderation().Stats(ctx, repository.ReportFilter{Created: window}); err != nil {
					return err
				}
				messaging := service.NewMessagingService(e.repos.Conversations, e.repos.Messages, e.repos.Drafts, nil, e.logger)
				if out.Messages, err = messaging.Stats(ctx, repository.MessageFilter{Created: window, IncludeDeleted: true}); err != nil {
					return err
				}
				logs := service.NewAccessLogService(e.repos.AccessLogs, e.logger)
				if out.AccessLogs, err = logs.Stats(ctx, repository.AccessLogFilter{Created: window}); err != nil {
					return err
				}

				if format == "json" {
					return outputJSON(cmd, out)
				}
				renderStats(cmd, out)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "Only count rows newer than this (e.g. 24h)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func renderStats(cmd *cobra.Command, s statsOutput) {
	t := newTable(cmd)
	t.AppendHeader(table.Row{"Area", "Metric", "Value"})

	r := s.Reports
	t.AppendRows([]table.Row{
		{"Reports", "Total", r.Total},
		{"Reports", "Pending", r.Pending},
		{"Reports", "Reviewing", r.Reviewing},
		{"Reports", "Resolved", r.Resolved},
		{"Reports", "Dismissed", r.Dismissed},
		{"Reports", "High priority", r.HighPriority},
		{"Reports", "Avg handling time", r.AvgHandlingTime.Round(time.Second)},
	})
	t.AppendSeparator()

	m := s.Messages
	t.AppendRows([]table.Row{
		{"Messages", "Total", m.Total},
		{"Messages", "Unread", m.Unread},
		{"Messages", "Deleted", m.Deleted},
		{"Messages", "With attachments", m.WithAttachments},
		{"Messages", "Attachment bytes", m.AttachmentBytes},
	})
	t.AppendSeparator()

	a := s.AccessLogs
	t.AppendRows([]table.Row{
		{"Requests", "Total", a.Total},
		{"Requests", "Server errors", a.Errors},
		{"Requests", "Client errors", a.ClientError},
		{"Requests", "Unique users", a.UniqueUsers},
		{"Requests", "Avg duration", a.AvgDuration},
		{"Requests", "Max duration", a.MaxDuration},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	t.Render()
}
