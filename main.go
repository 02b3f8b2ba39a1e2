package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/researchaccelerator-hub/housing-map-crawler/common"
	"github.com/researchaccelerator-hub/housing-map-crawler/config"
	"github.com/researchaccelerator-hub/housing-map-crawler/standalone"
	"github.com/researchaccelerator-hub/housing-map-crawler/state"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// newRootCmd builds the command tree. Flags are bound to viper keys and win
// over the environment and the config file when set.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var (
		cfgFile string
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "housing-crawler",
		Short:         "Resumable crawler for map-based housing listings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(v, cfgFile); err != nil {
				return err
			}
			level, _ := zerolog.ParseLevel(cfg.Log.Level)
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("storage-driver", "sqlite", "progress store: sqlite, postgres or dapr")
	flags.String("dsn", "data/housing.db", "SQLite path or Postgres connection string")
	bindFlags(v, root, map[string]string{
		"log.level":      "log-level",
		"storage.driver": "storage-driver",
		"storage.dsn":    "dsn",
	})

	root.AddCommand(
		newCrawlCmd(v, &cfg),
		newServeCmd(v, &cfg),
		newProgressCmd(&cfg),
		newCitiesCmd(&cfg),
	)
	return root
}

// bindFlags maps viper keys to flags of cmd.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			log.Fatal().Err(err).Str("flag", name).Msg("Failed to bind flag")
		}
	}
}

func newCrawlCmd(v *viper.Viper, cfg **config.Config) *cobra.Command {
	var city, ds string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one city in the foreground, resuming any earlier progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ds != "" {
				if err := common.ValidateCrawlDate(ds); err != nil {
					return err
				}
			}
			report, err := standalone.StartStandaloneMode(cmd.Context(), *cfg, city, ds)
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city name or code")
	cmd.Flags().StringVar(&ds, "ds", "", "crawl date YYYYMMDD (default today)")
	cmd.Flags().Int("concurrency", 3, "fetches per batch")
	_ = cmd.MarkFlagRequired("city")
	bindFlags(v, cmd, map[string]string{"crawl.concurrency": "concurrency"})
	return cmd
}

func newServeCmd(v *viper.Viper, cfg **config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server and, optionally, the Dapr handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return standalone.Serve(cmd.Context(), *cfg)
		},
	}
	cmd.Flags().String("addr", ":8000", "listen address")
	cmd.Flags().Int("dapr-port", 0, "serve Dapr invocation and job handlers on this port (0 disables)")
	bindFlags(v, cmd, map[string]string{
		"server.addr":      "addr",
		"server.dapr_port": "dapr-port",
	})
	return cmd
}

func newProgressCmd(cfg **config.Config) *cobra.Command {
	var city, ds string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Print the per-stage progress of a crawl",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			target, err := c.City(city)
			if err != nil {
				return err
			}
			if ds == "" {
				ds = common.GenerateCrawlDate()
			} else if err := common.ValidateCrawlDate(ds); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := state.NewStore(ctx, c.StateConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Report(ctx, ds, target.Code)
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city name or code")
	cmd.Flags().StringVar(&ds, "ds", "", "crawl date YYYYMMDD (default today)")
	_ = cmd.MarkFlagRequired("city")
	return cmd
}

func newCitiesCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "List the configured cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cities := (*cfg).Cities
			names := make([]string, 0, len(cities))
			codes := make(map[string]string, len(cities))
			for _, c := range cities {
				names = append(names, c.Name)
				codes[c.Name] = c.Code
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", codes[name], name)
			}
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
