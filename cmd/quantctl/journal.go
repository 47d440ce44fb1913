package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/quantcore/internal/analysis"
	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/wal"
)

// journalCmd inspects and replays the request journal
func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and replay the request journal",
	}
	cmd.AddCommand(replayCmd())
	return cmd
}

// replayRecord is one line of replay output.
type replayRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Op          string    `json:"op"`
	Bytes       int       `json:"bytes"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// replayCmd lists or re-executes journalled requests
func replayCmd() *cobra.Command {
	var (
		file    string
		dir     string
		key     string
		execute bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "List or re-execute journalled requests",
		Long: `Reads journal files, verifies each line's signature when a key is given,
and prints the recorded requests. With --execute every request is run again
through the local engines and its fingerprint and confidence are reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" && file == "" {
				dir = cfg.Journal.Dir
			}
			if key == "" {
				key = cfg.Journal.HMACKey
			}

			files := []string{file}
			if file == "" {
				if files, err = wal.Files(dir); err != nil {
					return fmt.Errorf("failed to list journal files: %w", err)
				}
			}

			var e *env
			if execute {
				if e, err = newEnv(cmd.Context()); err != nil {
					return err
				}
				defer e.Close()
			}

			var records []replayRecord
			var total wal.ReplayStats
			for _, path := range files {
				entries, stats, err := wal.Replay(path, []byte(key))
				if err != nil {
					return fmt.Errorf("failed to replay %s: %w", path, err)
				}
				total.Read += stats.Read
				total.Malformed += stats.Malformed
				total.BadSig += stats.BadSig

				for _, entry := range entries {
					rec := replayRecord{Timestamp: entry.Timestamp, Op: entry.Op, Bytes: len(entry.Body)}
					if e != nil {
						if err := reexecute(cmd.Context(), e.svc, &rec, entry.Body); err != nil {
							rec.Error = err.Error()
						}
					}
					records = append(records, rec)
				}
			}

			fmt.Fprintf(os.Stderr, "%d files, %d lines read, %d malformed, %d failed verification\n",
				len(files), total.Read, total.Malformed, total.BadSig)

			if outputFormat == "table" {
				return printReplayTable(records)
			}
			return printResult(records)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Single journal file")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Journal directory (default from config)")
	cmd.Flags().StringVar(&key, "key", "", "HMAC key for signature verification (default from config)")
	cmd.Flags().BoolVar(&execute, "execute", false, "Re-run each request through the local engines")

	return cmd
}

func printReplayTable(records []replayRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tOP\tBYTES\tFINGERPRINT\tCONFIDENCE\tERROR")
	for _, r := range records {
		fp := r.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.3f\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.Op, r.Bytes, fp, r.Confidence, r.Error)
	}
	return w.Flush()
}

// replayOp decodes a journalled body into Req and runs it.
func replayOp[Req any, Res any](ctx context.Context, body []byte, call func(context.Context, *Req) (*api.Envelope[Res], error), rec *replayRecord) error {
	req := new(Req)
	if err := json.Unmarshal(body, req); err != nil {
		return fmt.Errorf("%w: %v", api.ErrInvalidRequest, err)
	}
	env, err := call(ctx, req)
	if err != nil {
		return err
	}
	rec.Fingerprint = env.Fingerprint
	rec.Confidence = env.Confidence
	rec.Cached = env.Cached
	return nil
}

func reexecute(ctx context.Context, svc *analysis.Service, rec *replayRecord, body []byte) error {
	switch api.Op(rec.Op) {
	case api.OpAnalyzePoints:
		return replayOp(ctx, body, svc.AnalyzePoints, rec)
	case api.OpForecast:
		return replayOp(ctx, body, svc.Forecast, rec)
	case api.OpSimulate:
		return replayOp(ctx, body, svc.SimulateScenario, rec)
	case api.OpDiscover:
		return replayOp(ctx, body, svc.DiscoverCausalGraph, rec)
	case api.OpIntervention:
		return replayOp(ctx, body, svc.AnalyzeIntervention, rec)
	case api.OpCounterfactual:
		return replayOp(ctx, body, svc.AnalyzeCounterfactual, rec)
	case api.OpRootCauses:
		return replayOp(ctx, body, svc.RankRootCauses, rec)
	default:
		return fmt.Errorf("unknown op %q", rec.Op)
	}
}
