// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mariaflow/mariaflow/go/client"
	"github.com/mariaflow/mariaflow/go/config"
	"github.com/mariaflow/mariaflow/go/logutil"
)

// RootCommand holds the configuration shared by all subcommands.
type RootCommand struct {
	configFile string
	logOpts    logutil.Options
	logClose   func() error
	logger     *slog.Logger

	// Connection overrides; only applied when the flag was set.
	host     string
	port     int
	user     string
	password string
	database string

	cfg *config.Config
}

// GetRootCommand creates and returns the root command for mariaflowctl
// with all subcommands.
func GetRootCommand() *cobra.Command {
	rc := &RootCommand{}

	root := &cobra.Command{
		Use:   "mariaflowctl",
		Short: "Run statements and inspect pool health on a MariaDB server",
		Long: `mariaflowctl is the command-line companion for mariaflow.

It connects with the same pool, retry, and codec machinery the library
uses, so its behavior under failures matches what applications see.

Connection settings come from a YAML config file (--config-file), from
MARIAFLOW_* environment variables, or from the connection flags below;
flags win over the file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Silence usage for application errors, but allow it for flag
			// errors. This runs after flag parsing, so flag errors still
			// show usage.
			cmd.SilenceUsage = true
			return rc.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rc.logClose != nil {
				_ = rc.logClose()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rc.configFile, "config-file", "", "Path to a mariaflow YAML config file")
	pf.StringVar(&rc.host, "host", "", "Server host (overrides config)")
	pf.IntVar(&rc.port, "port", 0, "Server port (overrides config)")
	pf.StringVar(&rc.user, "user", "", "User name (overrides config)")
	pf.StringVar(&rc.password, "password", "", "Password (overrides config)")
	pf.StringVar(&rc.database, "database", "", "Database name (overrides config)")
	rc.logOpts.RegisterFlags(pf)

	root.AddCommand(pingCommand(rc))
	root.AddCommand(execCommand(rc))
	root.AddCommand(queryCommand(rc))
	root.AddCommand(streamCommand(rc))
	root.AddCommand(statsCommand(rc))

	return root
}

func (rc *RootCommand) setup(cmd *cobra.Command) error {
	rc.logger, rc.logClose = logutil.Setup(rc.logOpts)

	var cfg *config.Config
	if rc.configFile != "" {
		loaded, err := config.Load(rc.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = rc.host
	}
	if flags.Changed("port") {
		cfg.Port = rc.port
	}
	if flags.Changed("user") {
		cfg.User = rc.user
	}
	if flags.Changed("password") {
		cfg.Password = rc.password
	}
	if flags.Changed("database") {
		cfg.Database = rc.database
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	rc.cfg = cfg
	return nil
}

// connect builds a client from the resolved configuration. Callers own
// the returned client and must Close it.
func (rc *RootCommand) connect(ctx context.Context) (*client.Client, error) {
	return client.New(ctx, rc.cfg, client.WithLogger(rc.logger))
}
