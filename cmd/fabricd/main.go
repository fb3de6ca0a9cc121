// Command fabricd boots a single fabric node: an inproc-backed Plexus with
// a multicast ganglion infused, running until a termination signal arrives.
// It is intentionally thin — a full CLI driver is out of scope (see
// spec.md §1); this is just enough wiring to exercise a node manually.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plexus/core"
	"plexus/multicast"
	"plexus/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "fabricd",
		Short: "run a Plexus fabric node",
		RunE:  run,
	}
	root.Flags().String("env", "", "environment name merged over the default config")
	root.Flags().String("bind-interface", "", "local interface to bind the multicast transport to")
	_ = viper.BindPFlag("cli.env", root.Flags().Lookup("env"))
	_ = viper.BindPFlag("network.bind_interface", root.Flags().Lookup("bind-interface"))

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		log.Debugf("fabricd: no .env file loaded: %v", err)
	}

	env, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	plexus := core.NewPlexus(filterFromConfig(cfg))

	mg, err := multicast.New(multicast.Config{
		BindInterface:     cfg.Network.BindInterface,
		MulticastCIDR:     cfg.Network.MulticastCIDR,
		Port:              cfg.Network.Port,
		HeartbeatInterval: time.Duration(cfg.Consensus.HeartbeatIntervalSeconds) * time.Second,
		ProposalTimeout:   time.Duration(cfg.Consensus.ProposalTimeoutSeconds) * time.Second,
		ReservedAddresses: cfg.Consensus.ReservedAddresses,
		Filter:            filterFromConfig(cfg),
	})
	if err != nil {
		return err
	}
	if err := mg.Start(); err != nil {
		return err
	}
	if err := plexus.InfuseGanglion(mg); err != nil {
		return err
	}

	log.Infof("fabricd: node %d listening on %s:%d", mg.InstanceID(), cfg.Network.MulticastCIDR, cfg.Network.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("fabricd: shutting down")
	return plexus.Close()
}

func filterFromConfig(cfg *config.Config) core.CapabilityFilter {
	toSet := func(names []string) map[string]bool {
		if len(names) == 0 {
			return nil
		}
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		return m
	}
	return core.CapabilityFilter{
		Relevant:      toSet(cfg.Neurons.Relevant),
		Ignored:       toSet(cfg.Neurons.Ignored),
		AllowedCodecs: toSet(cfg.Codecs.Allowed),
	}
}
