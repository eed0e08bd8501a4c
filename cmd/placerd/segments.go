package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/config"
	"github.com/adammck/placer/pkg/metadata"
	"github.com/adammck/placer/pkg/metadata/bolt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	consulmeta "github.com/adammck/placer/pkg/metadata/consul"
	capi "github.com/hashicorp/consul/api"
)

func newSegmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Manage segment metadata",
	}

	cmd.PersistentFlags().String("store", "bolt", "where segment metadata lives: bolt or consul")
	cmd.PersistentFlags().String("bolt_path", "", "path to bolt DB (default: placer.db)")

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Add or replace the segments listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store metadata.Store) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			segs, err := parseSegments(f)
			if err != nil {
				return err
			}

			if err := store.PutSegments(cmd.Context(), segs); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d segments\n", len(segs))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every segment",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, store metadata.Store) error {
			segs, err := store.Segments(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSIZE")
			for _, seg := range segs {
				fmt.Fprintf(tw, "%s\t%d\n", seg.ID(), seg.Size)
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID...",
		Short: "Remove segments by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store metadata.Store) error {
			ids := make([]api.SegmentID, len(args))
			for i, a := range args {
				ids[i] = api.SegmentID(a)
			}

			return store.DeleteSegments(cmd.Context(), ids)
		}),
	})

	return cmd
}

// parseSegments reads a YAML sequence of segments.
func parseSegments(r io.Reader) ([]api.Segment, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var segs []api.Segment
	if err := dec.Decode(&segs); err != nil {
		return nil, fmt.Errorf("parsing segments: %w", err)
	}

	for i, seg := range segs {
		if seg.DataSource == "" {
			return nil, fmt.Errorf("segment %d has no dataSource", i)
		}
		if seg.Size < 0 {
			return nil, fmt.Errorf("segment %s has negative size", seg.ID())
		}
	}

	return segs, nil
}

type storeFunc func(cmd *cobra.Command, args []string, store metadata.Store) error

func withStore(f storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		kind, err := cmd.Flags().GetString("store")
		if err != nil {
			return err
		}

		store, closer, err := openStore(cfg, kind, log)
		if err != nil {
			return err
		}
		defer closer()

		return f(cmd, args, store)
	}
}

func openStore(cfg *config.Config, kind string, log *zap.Logger) (metadata.Store, func() error, error) {
	switch kind {
	case "bolt":
		s, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "consul":
		ccfg := capi.DefaultConfig()
		ccfg.Address = cfg.Consul.Addr

		client, err := capi.NewClient(ccfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating consul client: %w", err)
		}

		s := consulmeta.New(client, cfg.Consul.SegmentsPrefix, log.Named("metadata"))
		return s, func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store: %q", kind)
}
