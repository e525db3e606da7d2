package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/sprint"
)

// =============================================================================
// CLEAN - one export to a plain CSV
// =============================================================================

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean <in.csv> <out.csv>",
		Short: "Convert a tracker export into a comma-separated CSV without duplicates",
		Args:  cobra.ExactArgs(2),
		RunE:  runClean,
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	var out bytes.Buffer
	stats, err := sprint.CleanCSV(in, &out)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err := os.WriteFile(args[1], out.Bytes(), 0644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows in, %d rows out, %d duplicates, %d empty\n",
		args[0], stats.RowsIn, stats.RowsOut, stats.Duplicates, stats.EmptyRows)
	return nil
}

// =============================================================================
// CLEAN-ZIP - every export in an archive
// =============================================================================

func newCleanZipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean-zip <in.zip> <out.zip>",
		Short: "Clean every CSV inside a ZIP archive",
		Args:  cobra.ExactArgs(2),
		RunE:  runCleanZip,
	}
}

func runCleanZip(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	var out bytes.Buffer
	result, err := sprint.CleanZip(in, info.Size(), &out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], out.Bytes(), 0644); err != nil {
		return err
	}

	for _, skipped := range result.Skipped {
		logger.Warn("skipped archive member", zap.String("member", skipped))
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// =============================================================================
// METRICS - hours per sprint
// =============================================================================

func newMetricsCmd() *cobra.Command {
	var entities, history, sprints, until string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute To-Do, In-Progress and Done hours per sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := sprint.ParseUntil(until)
			if err != nil {
				return err
			}
			store, err := loadStore(cmd.Context(), map[sprint.TableKind]string{
				sprint.KindEntities: entities,
				sprint.KindHistory:  history,
				sprint.KindSprints:  sprints,
			}, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			metrics, err := store.SprintMetrics(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), metrics)
		},
	}
	cmd.Flags().StringVar(&entities, "entities", "", "entities export")
	cmd.Flags().StringVar(&history, "history", "", "history export")
	cmd.Flags().StringVar(&sprints, "sprints", "", "sprints export")
	cmd.Flags().StringVar(&until, "until", "", "only use history before or at 00:00 of this day (YYYY-MM-DD)")
	for _, name := range []string{"entities", "history", "sprints"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// =============================================================================
// ASSIGNEES - estimation against spent time
// =============================================================================

// selectionSprint holds the tasks picked with --ids.
const selectionSprint = "selection"

func newAssigneesCmd() *cobra.Command {
	var entities, ids string

	cmd := &cobra.Command{
		Use:   "assignees",
		Short: "Compare estimated and spent hours per assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseIDList(ids)
			if err != nil {
				return err
			}
			store, err := loadStore(cmd.Context(), map[sprint.TableKind]string{sprint.KindEntities: entities}, selected)
			if err != nil {
				return err
			}
			defer store.Close()

			totals, err := store.AssigneeTotals(cmd.Context(), selectionSprint)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sprint.AssigneeDeviations(totals))
		},
	}
	cmd.Flags().StringVar(&entities, "entities", "", "entities export")
	cmd.Flags().StringVar(&ids, "ids", "", "comma-separated task ids (default: every task)")
	_ = cmd.MarkFlagRequired("entities")
	return cmd
}

func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadStore reads the given exports into a fresh DuckDB store. When selection
// is set, or no sprints export is given, a synthetic sprint holding the
// selected tasks (or all of them) is added.
func loadStore(ctx context.Context, files map[sprint.TableKind]string, selection []int64) (*sprint.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dataset := &sprint.Dataset{}
	for _, kind := range []sprint.TableKind{sprint.KindEntities, sprint.KindHistory, sprint.KindSprints} {
		path, ok := files[kind]
		if !ok {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		got, err := dataset.AddExport(path, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		if got != kind {
			return nil, fmt.Errorf("%s: expected a %s export, got %s", path, kind, got)
		}
	}
	for _, w := range dataset.Warnings {
		logger.Warn("export warning", zap.String("warning", w))
	}

	if _, ok := files[sprint.KindSprints]; !ok {
		if selection == nil {
			for _, e := range dataset.Entities {
				selection = append(selection, e.ID)
			}
		}
		dataset.Sprints = append(dataset.Sprints, sprint.Sprint{Name: selectionSprint, EntityIDs: selection})
	}

	store, err := sprint.NewStore(sprint.StoreOptions{}, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx, dataset); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
