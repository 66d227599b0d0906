/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/roulette/gamelog"
	"github.com/Seednode/roulette/roulette"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	abortPolicy    string
	bind           string
	configFile     string
	corsOrigins    []string
	countdown      int
	h2c            bool
	logDialect     string
	logDSN         string
	port           int
	prefix         string
	presetSlots    int
	profile        bool
	resetInterval  string
	resetExplicit  bool
	revealHold     time.Duration
	sessionTimeout time.Duration
	tickInterval   time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	log zerolog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.presetSlots != 0 && (c.presetSlots < roulette.MinPresetSlots || c.presetSlots > roulette.MaxPresetSlots) {
		return fmt.Errorf("invalid preset slots (must be 0, or between %d-%d inclusive): %d",
			roulette.MinPresetSlots, roulette.MaxPresetSlots, c.presetSlots)
	}
	if _, err := gamelog.ParsePolicy(c.resetInterval); err != nil {
		return err
	}
	if _, err := gamelog.ParseDialect(c.logDialect); err != nil {
		return err
	}

	return c.roundSettings().Validate()
}

func (c *Config) roundSettings() roulette.Settings {
	return roulette.Settings{
		Countdown:  c.countdown,
		TickEvery:  c.tickInterval,
		RevealHold: c.revealHold,
		Abort:      roulette.AbortPolicy(c.abortPolicy),
	}
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// applyViper copies every value viper knows about onto flags that were not
// set on the command line.
func applyViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}

		value := fmt.Sprintf("%v", v.Get(f.Name))
		if f.Value.Type() == "stringSlice" {
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		}

		_ = fs.Set(f.Name, value)
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ROULETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "roulette",
		Short:         "Finger roulette: everyone puts a finger down, one gets picked.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.configFile != "" {
				v.SetConfigFile(cfg.configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfg.configFile, err)
				}

				applyViper(v, cmd.Flags())
			}

			// a policy saved in the game log wins over the default
			cfg.resetExplicit = cmd.Flags().Changed("reset-interval")

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.abortPolicy, "abort-policy", string(roulette.AbortAtZero), "when departures cancel a countdown: zero, below-two or never (env: ROULETTE_ABORT_POLICY)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ROULETTE_BIND)")
	fs.StringVarP(&cfg.configFile, "config", "c", "", "path to a yaml, toml or json config file (env: ROULETTE_CONFIG)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", nil, "origin allowed to call the api and open websockets, repeatable (env: ROULETTE_CORS_ORIGIN)")
	fs.IntVar(&cfg.countdown, "countdown", 3, "countdown length in ticks (env: ROULETTE_COUNTDOWN)")
	fs.BoolVar(&cfg.h2c, "h2c", false, "serve cleartext http/2 when tls is off (env: ROULETTE_H2C)")
	fs.StringVar(&cfg.logDialect, "log-dialect", string(gamelog.DialectMemory), "where the game log is kept: memory, sqlite or postgres (env: ROULETTE_LOG_DIALECT)")
	fs.StringVar(&cfg.logDSN, "log-dsn", "", "sqlite file path or postgres connection string for the game log (env: ROULETTE_LOG_DSN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: ROULETTE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: ROULETTE_PREFIX)")
	fs.IntVar(&cfg.presetSlots, "preset-slots", 0, "seat players on a fixed ring of this many circles, 0 for free placement (env: ROULETTE_PRESET_SLOTS)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: ROULETTE_PROFILE)")
	fs.StringVar(&cfg.resetInterval, "reset-interval", string(gamelog.PolicySession), "when the game log is cleared: never, session, daily, weekly or monthly (env: ROULETTE_RESET_INTERVAL)")
	fs.DurationVar(&cfg.revealHold, "reveal-hold", 5*time.Second, "how long the winner is shown before the next round (env: ROULETTE_REVEAL_HOLD)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle tables are closed (env: ROULETTE_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", time.Second, "time between countdown ticks (env: ROULETTE_TICK_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: ROULETTE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: ROULETTE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: ROULETTE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: ROULETTE_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
	})
	applyViper(v, fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("roulette v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
