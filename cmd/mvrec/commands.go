package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bluelabsio/records-mover-sub001/internal/config"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/move"
	"github.com/bluelabsio/records-mover-sub001/internal/probe"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		sourceHints   string
		targetHints   string
		formatName    string
		existingTable string
		dryRun        bool
	)
	cmd := &cobra.Command{
		Use:   "move <source> <target>",
		Short: "Move records from source to target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			srcEP, err := parseEndpoint(args[0])
			if err != nil {
				return err
			}
			tgtEP, err := parseEndpoint(args[1])
			if err != nil {
				return err
			}
			sh, err := config.ParseHints(sourceHints)
			if err != nil {
				return err
			}
			th, err := config.ParseHints(targetHints)
			if err != nil {
				return err
			}
			f, err := targetFormat(formatName, th)
			if err != nil {
				return err
			}
			mode, err := db.ParseExistingTable(existingTable)
			if err != nil {
				return err
			}
			pi, err := a.cfg.ProcessingInstructions(logging.Logger)
			if err != nil {
				return err
			}

			stopMetrics := setupMetrics(ctx, a.cfg.Metrics)
			defer stopMetrics()

			roots := a.cfg.ScratchRoots()
			scratch := make([]string, 0, len(roots))
			for _, r := range roots {
				scratch = append(scratch, r)
			}
			if err := a.ensureBackends(ctx, scratch...); err != nil {
				return err
			}

			src, err := a.source(ctx, srcEP, sh)
			if err != nil {
				return err
			}
			defer src.Close()
			tgt, err := a.target(ctx, tgtEP, f, mode)
			if err != nil {
				return err
			}
			defer tgt.Close()

			m := move.New(move.Options{
				Resolver:     a.loc,
				ScratchRoots: roots,
				PI:           pi,
				Logger:       logging.Logger,
			})
			if dryRun {
				p, err := m.Plan(ctx, src, tgt)
				if err != nil {
					return err
				}
				format := "arrow"
				if p.Format.Type != "" {
					format = p.Format.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "strategy=%s format=%s\n", p.Strategy, format)
				return nil
			}
			res, err := m.Run(ctx, src, tgt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "strategy=%s rows=%d\n", res.Strategy, res.MoveCount)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&sourceHints, "source-hints", "", "Hints for a file source, as a YAML/JSON mapping")
	fl.StringVar(&targetHints, "hints", "", "Hint overrides for a directory target, as a YAML/JSON mapping")
	fl.StringVar(&formatName, "format", string(hints.Bluelabs), "Directory target format: bluelabs, csv, bigquery, vertica or parquet")
	fl.StringVar(&existingTable, "existing-table", string(db.Append), "Table target mode: append, truncate_and_overwrite, delete_and_overwrite or drop_and_recreate")
	fl.BoolVar(&dryRun, "dry-run", false, "Print the chosen strategy without moving anything")
	return cmd
}

func newSniffCmd(a *app) *cobra.Command {
	var (
		hintFlag string
		report   bool
	)
	cmd := &cobra.Command{
		Use:   "sniff <url>",
		Short: "Print the sniffed format and inferred schema of a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			h, err := config.ParseHints(hintFlag)
			if err != nil {
				return err
			}
			pi, err := a.cfg.ProcessingInstructions(logging.Logger)
			if err != nil {
				return err
			}
			url := probe.NormalizeURL(args[0])
			if err := a.ensureBackends(ctx, url); err != nil {
				return err
			}
			res, err := probe.Probe(ctx, a.loc, url, probe.Options{
				Hints:      h,
				PI:         pi,
				Uniqueness: report,
				Logger:     logging.Logger,
			})
			if err != nil {
				return err
			}
			if report {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), probe.FormatUniquenessReport(res.Uniqueness))
				return err
			}
			return res.WriteJSON(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&hintFlag, "hints", "", "Hints that override sniffing, as a YAML/JSON mapping")
	cmd.Flags().BoolVar(&report, "report", false, "Print a per-column uniqueness report instead of JSON")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	var hintFlag string
	cmd := &cobra.Command{
		Use:   "schema <source>",
		Short: "Print the records schema JSON of any source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			ep, err := parseEndpoint(args[0])
			if err != nil {
				return err
			}
			h, err := config.ParseHints(hintFlag)
			if err != nil {
				return err
			}
			pi, err := a.cfg.ProcessingInstructions(logging.Logger)
			if err != nil {
				return err
			}
			src, err := a.source(ctx, ep, h)
			if err != nil {
				return err
			}
			defer src.Close()
			s, err := src.Schema(ctx, pi)
			if err != nil {
				return errors.Wrapf(err, "schema of %s", src.Name())
			}
			b, err := schema.ToJSON(s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().StringVar(&hintFlag, "hints", "", "Hints for a file source, as a YAML/JSON mapping")
	return cmd
}
