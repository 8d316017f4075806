// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/casegen/casegen/internal/config"
	"github.com/casegen/casegen/internal/secrets"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// cli carries the per-invocation viper instance to every subcommand.
type cli struct {
	v *viper.Viper
}

// NewRootCmd creates the root casegen command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "casegen",
		Short:         "casegen: generate, revise and export test cases",
		Long:          "casegen asks a remote AI flow for test cases, lets you revise them through a patch conversation and exports them to the ticketing system.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initViper(cmd)
		},
	}

	// Global flags; initViper maps them to viper keys.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().StringP("workspace", "w", "default", "workspace to operate on")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.newServeCmd(),
		c.newGenerateCmd(),
		c.newChecksCmd(),
		c.newRecordsCmd(),
		c.newPatchCmd(),
		c.newExportCmd(),
		c.newHistoryCmd(),
		newSecretCmd(),
		c.newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up defaults, env bindings, flag bindings and the optional
// config file so the usual precedence (flag > env > file > defaults) holds.
// Keyring references are resolved last.
func (c *cli) initViper(cmd *cobra.Command) error {
	v := c.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cgerr.Errorf(cgerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted on purpose: with it viper also tries the
		// bare name, which matches the ./casegen binary.
		v.SetConfigName("casegen")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/casegen")
		v.AddConfigPath("/etc/casegen")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cgerr.Errorf(cgerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := bootstrapDefault(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return cgerr.Errorf(cgerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return cgerr.Errorf(cgerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return cgerr.Errorf(cgerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	setupLogging(cmd.ErrOrStderr(), v.GetString("log.level"), v.GetString("log.format"), v.GetBool("verbose"))
	secrets.ResolveViper(v, secretStoreFactory())
	return nil
}

// bootstrapDefault writes the default config to the per-user location when
// none exists anywhere. Tests disable it.
var bootstrapDefault = func() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	return config.BootstrapConfig(path)
}

func setupLogging(w io.Writer, level, format string, verbose bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig decodes the resolved viper state.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.FromViper(c.v)
}
