package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

// detailsWidth caps the details column so one long report cannot push the
// table past the terminal.
const detailsWidth = 40

func (e *env) moderation() *service.ModerationService {
	notifications := service.NewNotificationService(e.repos.Notifications, e.repos.NotificationSettings, e.logger)
	return service.NewModerationService(e.repos.Reports, notifications, e.logger)
}

func newReportsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and decide comment reports",
	}
	cmd.AddCommand(newReportsListCmd(opts))
	cmd.AddCommand(newReportsQueueCmd(opts))
	cmd.AddCommand(newReportsHandleCmd(opts))
	return cmd
}

type reportListFlags struct {
	statuses     []string
	reason       string
	reporter     string
	comment      string
	search       string
	highPriority bool
	sort         string
	dir          string
	page         int
	pageSize     int
	format       string
}

func newReportsListCmd(opts *rootOptions) *cobra.Command {
	var fl reportListFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports matching filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(fl.format); err != nil {
				return err
			}
			f, err := fl.filter(cmd)
			if err != nil {
				return err
			}
			sort, err := repository.ReportSorts.Parse(fl.sort, fl.dir)
			if err != nil {
				return err
			}
			page := query.PageRequest{Page: fl.page, Size: fl.pageSize}

			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				result, err := e.moderation().List(ctx, f, sort, page)
				if err != nil {
					return err
				}
				return outputReports(cmd, fl.format, result)
			})
		},
	}

	cmd.Flags().StringSliceVar(&fl.statuses, "status", nil, "Statuses to include (pending, reviewing, resolved, dismissed)")
	cmd.Flags().StringVar(&fl.reason, "reason", "", "Report reason")
	cmd.Flags().StringVar(&fl.reporter, "reporter", "", "Reporter user ID")
	cmd.Flags().StringVar(&fl.comment, "comment", "", "Comment ID")
	cmd.Flags().StringVarP(&fl.search, "query", "q", "", "Search the report details")
	cmd.Flags().BoolVar(&fl.highPriority, "high-priority", false, "Only comments reported several times")
	cmd.Flags().StringVar(&fl.sort, "sort", "", "Sort by: "+strings.Join(repository.ReportSorts.Tokens, ", "))
	cmd.Flags().StringVar(&fl.dir, "dir", "", "Sort direction: asc or desc")
	cmd.Flags().IntVar(&fl.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&fl.pageSize, "page-size", query.DefaultPageSize, "Reports per page")
	cmd.Flags().StringVar(&fl.format, "format", "table", "Output format: table or json")
	return cmd
}

func (fl *reportListFlags) filter(cmd *cobra.Command) (repository.ReportFilter, error) {
	f := repository.ReportFilter{Search: fl.search}
	for _, s := range fl.statuses {
		status := model.ReportStatus(strings.TrimSpace(s))
		if !status.Valid() {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, status)
	}
	if fl.reason != "" {
		reason := model.ReportReason(fl.reason)
		if !reason.Valid() {
			return f, fmt.Errorf("unknown reason %q", fl.reason)
		}
		f.Reason = &reason
	}
	ids := []struct {
		name, value string
		dst         **uuid.UUID
	}{
		{"--reporter", fl.reporter, &f.ReporterID},
		{"--comment", fl.comment, &f.CommentID},
	}
	for _, in := range ids {
		if in.value == "" {
			continue
		}
		id, err := uuid.Parse(in.value)
		if err != nil {
			return f, fmt.Errorf("%s: invalid id %q", in.name, in.value)
		}
		*in.dst = &id
	}
	if cmd.Flags().Changed("high-priority") {
		f.HighPriority = &fl.highPriority
	}
	return f, nil
}

func newReportsQueueCmd(opts *rootOptions) *cobra.Command {
	var page, pageSize int
	var format string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show open reports, most-reported comments first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				result, err := e.moderation().Queue(ctx, query.PageRequest{Page: page, Size: pageSize})
				if err != nil {
					return err
				}
				return outputReports(cmd, format, result)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", query.DefaultPageSize, "Reports per page")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newReportsHandleCmd(opts *rootOptions) *cobra.Command {
	var moderator, status, note string

	cmd := &cobra.Command{
		Use:   "handle <report-id>",
		Short: "Record a moderator's decision on a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			mod, err := uuid.Parse(moderator)
			if err != nil {
				return fmt.Errorf("--moderator must be a user id")
			}
			return opts.run(cmd, true, func(ctx context.Context, e *env) error {
				r, err := e.moderation().Handle(ctx, id, mod, model.ReportStatus(status), note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report %s is now %s\n", r.ID, r.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&moderator, "moderator", "", "Moderator user ID (required)")
	cmd.Flags().StringVar(&status, "status", string(model.ReportResolved), "New status: reviewing, resolved or dismissed")
	cmd.Flags().StringVar(&note, "note", "", "Note shown to the reporter")
	_ = cmd.MarkFlagRequired("moderator")
	return cmd
}

func outputReports(cmd *cobra.Command, format string, result query.PageResult[model.CommentReport]) error {
	if format == "json" {
		return outputJSON(cmd, result)
	}

	t := newTable(cmd)
	t.AppendHeader(table.Row{"ID", "Status", "Reason", "Reports", "Reporter", "Created", "Details"})
	for _, r := range result.Items {
		reporter := r.ReporterID.String()
		if r.Reporter != nil {
			reporter = r.Reporter.Login
		}
		t.AppendRow(table.Row{
			r.ID,
			r.Status,
			r.Reason,
			r.ReportCount,
			reporter,
			r.CreatedAt.Format("2006-01-02 15:04"),
			runewidth.Truncate(r.Details, detailsWidth, "..."),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Page", fmt.Sprintf("%d of %d (%d total)", result.Page, result.TotalPages, result.TotalCount)})
	t.Render()
	return nil
}
