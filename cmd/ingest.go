package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/speedtrack/internal/ingest"
)

var ingestFromFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one measurement cycle and load it into the warehouse",
	Long:  "Runs the speedtest CLI once (or reads a saved JSON report with --from-file), then writes the observation to the warehouse in a single transaction.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return runIngest(ctx, cmd.OutOrStdout(), env.Pipeline, ingestFromFile)
	},
}

func runIngest(ctx context.Context, out io.Writer, p *ingest.Pipeline, fromFile string) error {
	var (
		outcome *ingest.Outcome
		err     error
	)
	if fromFile != "" {
		raw, readErr := os.ReadFile(fromFile)
		if readErr != nil {
			return eris.Wrapf(readErr, "read report %s", fromFile)
		}
		outcome, err = p.IngestReport(ctx, raw)
	} else {
		outcome, err = p.RunOnce(ctx)
	}
	if err != nil {
		return err
	}

	printOutcome(out, outcome)
	return nil
}

func printOutcome(out io.Writer, o *ingest.Outcome) {
	obs := o.Observation
	fmt.Fprintf(out, "cycle %s: result %s at %s\n", o.CycleID, obs.Result.ResultID, obs.Fact.MeasuredAtUTC.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Fprintf(out, "  download %.2f Mbps, upload %.2f Mbps, latency %.2f ms\n",
		obs.Fact.DownloadMbps, obs.Fact.UploadMbps, obs.Fact.LatencyMs)
	if w := o.Write; w != nil {
		fmt.Fprintf(out, "  server %d (%s): new=%t geo=%s\n", obs.Server.ServerID, obs.Server.Name, w.ServerInserted, w.Enrichment.Status)
		fmt.Fprintf(out, "  fact stored=%t, elapsed %s\n", w.FactInserted, o.Elapsed.Round(time.Millisecond))
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFromFile, "from-file", "", "ingest a saved speedtest JSON report instead of running the CLI")
	rootCmd.AddCommand(ingestCmd)
}
