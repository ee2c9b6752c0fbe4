package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/daymake/pkg/model"
)

func newStatusCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "status [JOB_ID]",
		Short: "Query a running daemon for the run date summary or one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				if cfg.ListenAddr == "" {
					return fmt.Errorf("no daemon address: set --server or listen_addr")
				}
				serverURL = "http://" + cfg.ListenAddr
			}
			client := NewClient(strings.TrimRight(serverURL, "/"), logger)
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := client.Get(cmd.Context(), "/api/v1/jobs/"+escapeJobID(args[0]))
				if err != nil {
					return fmt.Errorf("get job: %w", err)
				}
				var data struct {
					Job     model.Job          `json:"job"`
					Status  model.Status       `json:"status"`
					Current *model.StatusEvent   `json:"current"`
					History []*model.StatusEvent `json:"history"`
				}
				if err := decode(resp, &data); err != nil {
					return err
				}

				fmt.Fprintf(out, "Job:         %s\n", data.Job.ID)
				if data.Job.Description != "" {
					fmt.Fprintf(out, "  Description: %s\n", data.Job.Description)
				}
				fmt.Fprintf(out, "  Command:     %s\n", data.Job.Command)
				fmt.Fprintf(out, "  Start after: %s\n", data.Job.StartAfter)
				if len(data.Job.DependsOn) > 0 {
					fmt.Fprintf(out, "  Depends on:  %s\n", strings.Join(data.Job.DependsOn, ", "))
				}
				fmt.Fprintf(out, "  Status:      %s\n", data.Status)
				if data.Current != nil {
					fmt.Fprintf(out, "  Since:       %s\n", data.Current.Time.Format("2006-01-02 15:04:05Z07:00"))
					if data.Current.Comment != "" {
						fmt.Fprintf(out, "  Comment:     %s\n", data.Current.Comment)
					}
				}
				if len(data.History) > 0 {
					fmt.Fprintln(out, "  History:")
					for _, ev := range data.History {
						fmt.Fprintf(out, "    %s  %-8s %s\n", ev.Time.Format("2006-01-02 15:04:05Z07:00"), ev.Status, ev.Comment)
					}
				}
				return nil
			}

			resp, err := client.Get(cmd.Context(), "/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var data struct {
				RunDate string         `json:"run_date"`
				Counts  map[string]int `json:"counts"`
				Stuck   []string       `json:"stuck"`
			}
			if err := decode(resp, &data); err != nil {
				return err
			}

			fmt.Fprintf(out, "Run date: %s\n", data.RunDate)
			for _, s := range append([]model.Status{model.StatusMissing}, model.AllStatuses...) {
				if n := data.Counts[s.String()]; n > 0 {
					fmt.Fprintf(out, "  %-8s %d\n", s, n)
				}
			}
			if len(data.Stuck) > 0 {
				fmt.Fprintf(out, "Stuck:    %s\n", strings.Join(data.Stuck, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Daemon URL (default http://<listen_addr>)")
	return cmd
}

// escapeJobID escapes each path segment of a job id, keeping the slashes
// that separate them.
func escapeJobID(id string) string {
	segs := strings.Split(id, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

func decode(resp *apiResponse, v any) error {
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
