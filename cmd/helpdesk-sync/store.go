package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/store"
	"github.com/nhle/helpdesk-sync/internal/theme"
)

var (
	recordsType  string
	recordsLimit int
	recordsJSON  bool
	runsLimit    int
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	GroupID: "store",
	Short:   "List records kept in the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.RecordFilter{Limit: recordsLimit}
		if recordsType != "" {
			typ, err := parseRecordType(recordsType)
			if err != nil {
				return err
			}
			filter.Type = &typ
		}

		records, err := st.GetRecords(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if recordsJSON {
			enc := json.NewEncoder(out)
			for _, r := range records {
				if err := enc.Encode(r.Record); err != nil {
					return err
				}
			}
			return nil
		}

		for _, r := range records {
			fmt.Fprintf(out, "%s %-12d %s  %s\n",
				theme.RecordTypeStyle(string(r.Record.Type)).Render(string(r.Record.Type)),
				r.Record.ID,
				r.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				recordTitle(r.Record),
			)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, theme.HelpStyle.Render("no records"))
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:     "runs",
	GroupID: "store",
	Short:   "List recent sync cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.GetRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range runs {
			finished := "running"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			line := fmt.Sprintf("%s  %s  %-10s %-8s emitted=%d failed=%d skipped=%d stage_errors=%d",
				shortID(r.ID),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Mode,
				finished,
				r.Emitted, r.Failed, r.Skipped, r.StageErrs,
			)
			fmt.Fprintln(out, theme.RunStyle(r.Failed, r.Skipped, r.StageErrs).Render(line))
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, theme.HelpStyle.Render("no runs recorded"))
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsType, "type", "", "only list records of this type")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum number of records")
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print full records as JSON lines")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("store.path is not configured")
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

func parseRecordType(s string) (model.RecordType, error) {
	for _, t := range model.RecordTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// recordTitle picks a human-readable label for a record listing.
func recordTitle(rec *model.Record) string {
	fields := model.Attributes(rec.Fields)
	for _, key := range []string{"subject", "title", "name", "ticket_subject"} {
		if v := fields.String(key); v != "" {
			return v
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
