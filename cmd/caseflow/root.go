package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/caseflow-dev/caseflow/config"
	"github.com/caseflow-dev/caseflow/provider"
	"github.com/caseflow-dev/caseflow/provider/atlas"
	"github.com/caseflow-dev/caseflow/provider/common"
	"github.com/caseflow-dev/caseflow/provider/httpapi"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Staged workflow runtime for customer-support requests",
	Long: `caseflow walks support requests through a fixed stage graph, dispatching
each stage's abilities to the COMMON and ATLAS capability providers and
accumulating a typed state record plus a full audit log.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML routing table (default: built-in demo table)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", flagLogLevel, err)
	}
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l, nil
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

// buildProviders instantiates every provider the config declares. The
// returned closer releases any database handles and is safe to call once.
func buildProviders(cfg config.Config) (map[string]provider.Provider, func(), error) {
	providers := make(map[string]provider.Provider, len(cfg.Providers))
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for name, pc := range cfg.Providers {
		if pc.Endpoint != config.EndpointInProcess {
			providers[name] = httpapi.NewClient(name, pc.Endpoint)
			continue
		}
		switch name {
		case common.ProviderName:
			providers[name] = common.New()
		case atlas.ProviderName:
			if pc.DBPath == "" {
				providers[name] = atlas.NewDetached()
				continue
			}
			a, err := atlas.New(pc.DBPath)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, a.Close)
			providers[name] = a
		default:
			closeAll()
			return nil, nil, fmt.Errorf("no in-process implementation for provider %s", name)
		}
	}
	return providers, closeAll, nil
}
