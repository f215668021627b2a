package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bionicotaku/codereview-sessionx"
)

const historyPath = sessionx.DashboardPath + "/history"

type reviewTask struct {
	ID               int64  `json:"id"`
	UserID           int64  `json:"userId"`
	Title            string `json:"title"`
	Language         string `json:"language"`
	AIModel          string `json:"aiModel"`
	Status           int    `json:"status"`
	ReviewResult     string `json:"reviewResult"`
	QualityScore     *int   `json:"qualityScore"`
	SecurityScore    *int   `json:"securityScore"`
	PerformanceScore *int   `json:"performanceScore"`
	IssueCount       *int   `json:"issueCount"`
	ErrorMsg         string `json:"errorMsg"`
	CreateTime       string `json:"createTime"`
	UpdateTime       string `json:"updateTime"`
}

type taskPage struct {
	Records []reviewTask `json:"records"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	Size    int          `json:"size"`
}

type exportRequest struct {
	TaskIDs        []int64 `json:"taskIds"`
	Format         string  `json:"format"`
	IncludeDetails bool    `json:"includeDetails"`
	FileName       string  `json:"fileName,omitempty"`
}

var statusNames = map[int]string{
	0: "pending",
	1: "reviewing",
	2: "completed",
	3: "failed",
}

func statusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}

func score(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func (c *cli) tasksCmd() *cobra.Command {
	var (
		page, size, status int
		language           string
	)
	cmd := &cobra.Command{
		Use:         "tasks",
		Short:       "List your review tasks",
		Annotations: map[string]string{routeAnnotation: historyPath},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("page", strconv.Itoa(page))
			q.Set("size", strconv.Itoa(size))
			if status >= 0 {
				q.Set("status", strconv.Itoa(status))
			}
			if language != "" {
				q.Set("language", language)
			}
			var result taskPage
			err := c.app.Client.Do(c.ctx(cmd), sessionx.Request{
				Method: http.MethodGet,
				Path:   "/api/review/tasks",
				Query:  q,
			}, &result)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(result.Records))
			for _, t := range result.Records {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.Title,
					t.Language,
					statusName(t.Status),
					score(t.QualityScore),
					score(t.IssueCount),
					t.CreateTime,
				})
			}
			out := cmd.OutOrStdout()
			if err := renderTable(out, []string{"ID", "Title", "Language", "Status", "Quality", "Issues", "Created"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "\npage %d, %d of %d tasks\n", result.Page, len(result.Records), result.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 10, "page size")
	cmd.Flags().IntVar(&status, "status", -1, "filter by status: 0 pending, 1 reviewing, 2 completed, 3 failed")
	cmd.Flags().StringVar(&language, "language", "", "filter by language")
	return cmd
}

func (c *cli) taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show one review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.navigate(cmd.Context(), sessionx.DashboardPath+"/detail/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			id := c.nav.Location.Param("id")
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				return fmt.Errorf("task id %q is not a number", id)
			}
			var t reviewTask
			err := c.app.Client.Do(c.ctx(cmd), sessionx.Request{
				Method: http.MethodGet,
				Path:   "/api/review/task/" + id,
			}, &t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"ID", strconv.FormatInt(t.ID, 10)},
				{"Title", t.Title},
				{"Language", t.Language},
				{"Model", t.AIModel},
				{"Status", statusName(t.Status)},
				{"Quality", score(t.QualityScore)},
				{"Security", score(t.SecurityScore)},
				{"Performance", score(t.PerformanceScore)},
				{"Issues", score(t.IssueCount)},
				{"Created", t.CreateTime},
				{"Updated", t.UpdateTime},
			}
			if t.ErrorMsg != "" {
				rows = append(rows, []string{"Error", t.ErrorMsg})
			}
			if err := renderTable(out, []string{"Field", "Value"}, rows); err != nil {
				return err
			}
			if t.ReviewResult != "" {
				fmt.Fprintf(out, "\n%s\n", t.ReviewResult)
			}
			return nil
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		req    = exportRequest{Format: "pdf", IncludeDetails: true}
		output string
	)
	cmd := &cobra.Command{
		Use:         "export",
		Short:       "Download a review report",
		Annotations: map[string]string{routeAnnotation: historyPath},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(req.TaskIDs) == 0 {
				return errors.New("--ids needs at least one task")
			}
			if req.Format != "pdf" && req.Format != "excel" {
				return fmt.Errorf("unknown format %q: must be pdf or excel", req.Format)
			}
			ctx := c.ctx(cmd)
			dl, err := c.app.Client.Download(ctx, sessionx.Request{
				Method: http.MethodPost,
				Path:   "/api/review/export",
				Body:   req,
				Header: http.Header{"Accept": []string{"*/*"}},
			})
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = reportName(dl.Filename, req)
			}
			if err := afero.WriteFile(c.fs, path, dl.Data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			c.notifier.Notify(ctx, sessionx.SeveritySuccess, fmt.Sprintf("Report saved to %s (%d bytes)", path, len(dl.Data)))
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&req.TaskIDs, "ids", nil, "task ids to include")
	cmd.Flags().StringVar(&req.Format, "format", "pdf", "report format: pdf or excel")
	cmd.Flags().BoolVar(&req.IncludeDetails, "details", true, "include per-issue details")
	cmd.Flags().StringVar(&req.FileName, "name", "", "report file name without extension")
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to save the report (default: name sent by the server)")
	return cmd
}

func reportName(served string, req exportRequest) string {
	if served != "" {
		return filepath.Base(served)
	}
	name := req.FileName
	if name == "" {
		name = "code_review_report"
	}
	if req.Format == "excel" {
		return name + ".xlsx"
	}
	return name + ".pdf"
}
