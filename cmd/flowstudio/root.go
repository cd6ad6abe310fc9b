package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Setting keys shared by flags, environment and config file.
const (
	keyConfig    = "config"
	keyEnvFile   = "env-file"
	keyFlows     = "flows"
	keyPostgres  = "postgres"
	keyLogFormat = "log-format"
	keyLogLevel  = "log-level"
)

// engineEnvKeys are engine config keys that may be set from the environment
// without appearing in the config file.
var engineEnvKeys = []string{
	"default_timeout",
	"audit_failure_fatal",
	"audit.driver",
	"audit.dsn",
	"llm.model",
	"llm.base_url",
	"llm.api_key_env",
	"llm.timeout",
	"observability.metrics",
	"observability.tracing",
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "flowstudio",
		Short:         "Run and validate flow graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(keyConfig, "", "engine config file (yaml or json)")
	pf.String(keyEnvFile, ".env", "dotenv file loaded before reading the environment")
	pf.String(keyFlows, "flows", "directory of flow files")
	pf.String(keyPostgres, "", "postgres DSN; flows and passages are read from the database")
	pf.String(keyLogFormat, "text", "log format: text or json")
	pf.String(keyLogLevel, "warn", "log level: debug, info, warn or error")
	_ = v.BindPFlags(pf)

	v.SetEnvPrefix("FLOWSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range engineEnvKeys {
		_ = v.BindEnv(key)
	}

	root.AddCommand(
		newRunCmd(v),
		newValidateCmd(v),
		newListCmd(v),
		newAuditCmd(v),
	)
	return root
}
