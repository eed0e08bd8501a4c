package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adammck/placer/pkg/actuator"
	"github.com/adammck/placer/pkg/config"
	"github.com/adammck/placer/pkg/orchestrator"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/ruleset"
	"github.com/adammck/placer/pkg/stats"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/lthibault/jitterbug"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	consulact "github.com/adammck/placer/pkg/actuator/consul"
	consuldisc "github.com/adammck/placer/pkg/discovery/consul"
	consulmeta "github.com/adammck/placer/pkg/metadata/consul"
	capi "github.com/hashicorp/consul/api"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator until interrupted",
		Long: `Run the coordinator until interrupted. Membership, segment metadata, and
commands to nodes all go through Consul. Send SIGHUP to reload the rules file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			c, err := NewCoordinator(cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(sig)

			go func() {
				for s := range sig {
					if s == syscall.SIGHUP {
						if err := c.ReloadRules(); err != nil {
							log.Error("reloading rules", zap.Error(err))
						}
						continue
					}

					cancel()
					return
				}
			}()

			return c.Run(ctx)
		},
	}

	cmd.Flags().String("rules_file", "", "path to rules file (default: rules.yaml)")
	cmd.Flags().String("metrics_addr", "", "address to serve /metrics and /debug on (default: :9090)")

	return cmd
}

type Coordinator struct {
	cfg *config.Config
	log *zap.Logger

	orch *orchestrator.Orchestrator
	act  *actuator.Actuator
	srv  *http.Server
}

func NewCoordinator(cfg *config.Config, log *zap.Logger) (*Coordinator, error) {
	ccfg := capi.DefaultConfig()
	ccfg.Address = cfg.Consul.Addr

	client, err := capi.NewClient(ccfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}

	// Fail early if the rules are bad, rather than running with none.
	rs, err := ruleset.Load(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()

	src := consuldisc.New(client, cfg.Consul.Service, cfg.Consul.AnnouncePrefix, log.Named("discovery"))
	ros := roster.New(src, clock, cfg.NodeExpiry, log.Named("roster"))
	segs := consulmeta.New(client, cfg.Consul.SegmentsPrefix, log.Named("metadata"))
	coll := stats.NewCollector()

	orch := orchestrator.New(clock, ros, segs, rs, coll, log.Named("orchestrator"))
	orch.SetTierPriority(cfg.TierPriority)
	orch.SetParallelism(cfg.Parallelism)

	impl := consulact.New(client, cfg.Consul.QueuePrefix, log.Named("transfer"))
	act := actuator.New(impl, clock, cfg.Actuator.Backoff, cfg.Actuator.Timeout, log.Named("actuator"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		coll,
		act,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.PathPrefix("/debug/").Handler(orch.DebugHandler())

	return &Coordinator{
		cfg:  cfg,
		log:  log,
		orch: orch,
		act:  act,
		srv:  &http.Server{Addr: cfg.MetricsAddr, Handler: r},
	}, nil
}

// ReloadRules reads the rules file again, and uses it from the next cycle. If
// the file is invalid, the current rules are kept.
func (c *Coordinator) ReloadRules() error {
	rs, err := ruleset.Load(c.cfg.RulesFile)
	if err != nil {
		return err
	}

	c.orch.SetRules(rs)
	c.log.Info("reloaded rules", zap.String("path", c.cfg.RulesFile), zap.Strings("datasources", rs.DataSources()))
	return nil
}

// Run performs a cycle immediately, and then one every period (plus or minus
// some jitter) until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		c.log.Info("listening", zap.String("addr", c.cfg.MetricsAddr))
		err := c.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	c.cycle(ctx)

	srvErr := errChan
	ticker := jitterbug.New(c.cfg.CyclePeriod, &jitterbug.Norm{Stdev: c.cfg.CycleJitter})
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err := <-srvErr:
			if err != nil {
				return fmt.Errorf("serving metrics: %w", err)
			}
			srvErr = nil

		case <-ticker.C:
			c.cycle(ctx)
		}
	}

	// Commands in flight were cancelled along with ctx. Their keys are left in
	// place, so nodes may still complete them.
	c.act.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.srv.Shutdown(sctx); err != nil {
		return err
	}

	return <-errChan
}

func (c *Coordinator) cycle(ctx context.Context) {
	res, err := c.orch.Tick(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("cycle failed", zap.Error(err))
		}
		return
	}

	n := c.act.Tick(ctx, res.Cluster)
	c.log.Debug("dispatched commands", zap.String("cycle", res.ID), zap.Int("commands", n))
}
