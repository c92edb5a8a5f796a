package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/selfheal/internal/domain/model"
	"github.com/target/selfheal/internal/migrate"
	"gopkg.in/yaml.v3"
)

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printMigrationStatus(w io.Writer, statuses []migrate.Status) error {
	tw := newTable(w)
	if err := writeln(tw, "VERSION\tAPPLIED"); err != nil {
		return err
	}
	for _, s := range statuses {
		if err := writef(tw, "%s\t%t\n", s.Version, s.Applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []model.Run) error {
	if len(runs) == 0 {
		return writeln(w, "no workflow runs found")
	}
	tw := newTable(w)
	if err := writeln(tw, "ID\tSTATUS\tCONCLUSION\tBRANCH\tSHA\tNAME\tCREATED"); err != nil {
		return err
	}
	for _, r := range runs {
		if err := writef(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			dash(r.Status),
			dash(r.Conclusion),
			dash(r.HeadBranch),
			dash(shortSHA(r.HeadSHA)),
			dash(r.Name),
			formatTime(r.CreatedAt),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type outputFormat string

const (
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(v string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(v))); f {
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid options: json, yaml)", v)
	}
}

func printJob(w io.Writer, job *model.Job, format outputFormat) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(job); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
