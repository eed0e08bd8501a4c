package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/discovery/static"
	"github.com/adammck/placer/pkg/metadata/bolt"
	"github.com/adammck/placer/pkg/orchestrator"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/ruleset"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var nodesPath string
	var at string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the operations which one cycle would queue",
		Long: `Run a single cycle against a static topology file and the segments in the
local bolt DB, and print the operations which would be queued, and the stats.
Nothing is sent to any node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			now := time.Now()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parsing --now: %w", err)
				}
			}

			src, err := static.Load(nodesPath)
			if err != nil {
				return err
			}

			rs, err := ruleset.Load(cfg.RulesFile)
			if err != nil {
				return err
			}

			store, err := bolt.Open(cfg.BoltPath)
			if err != nil {
				return err
			}
			defer store.Close()

			clock := clockwork.NewFakeClockAt(now)
			ros := roster.New(src, clock, cfg.NodeExpiry, log.Named("roster"))

			orch := orchestrator.New(clock, ros, store, rs, nil, log.Named("orchestrator"))
			orch.SetTierPriority(cfg.TierPriority)

			// One at a time, so that the same inputs always give the same
			// plan, even when segments compete for capacity.
			orch.SetParallelism(1)

			res, err := orch.Tick(cmd.Context())
			if err != nil {
				return err
			}

			return printPlan(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&nodesPath, "nodes", "nodes.yaml", "path to static topology file")
	cmd.Flags().StringVar(&at, "now", "", "evaluate period rules as of this time (RFC3339)")
	cmd.Flags().String("rules_file", "", "path to rules file (default: rules.yaml)")
	cmd.Flags().String("bolt_path", "", "path to bolt DB of segments (default: placer.db)")

	return cmd
}

func printPlan(w io.Writer, res *orchestrator.Result) error {
	cmds := []api.Command{}
	for _, n := range res.Cluster.AllNodes() {
		cmds = append(cmds, n.Queue().Commands(n.Ident())...)
	}

	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Less(cmds[j])
	})

	for _, c := range cmds {
		fmt.Fprintln(w, c)
	}

	fmt.Fprintf(w, "\n%d segments, %d nodes, %d operations\n\n", res.Segments, res.Cluster.Len(), len(cmds))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tCOUNTER\tVALUE")

	printCounters(tw, "*", res.Stats.GlobalStats())

	perTier := res.Stats.PerTier()
	tiers := make([]string, 0, len(perTier))
	for t := range perTier {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)

	for _, t := range tiers {
		printCounters(tw, t, perTier[t])
	}

	return tw.Flush()
}

func printCounters(w io.Writer, tier string, counters map[string]int64) {
	names := make([]string, 0, len(counters))
	for n := range counters {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		fmt.Fprintf(w, "%s\t%s\t%d\n", tier, n, counters[n])
	}
}

