package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/internal/logging"
)

var (
	v       = viper.New()
	cfg     config.Config
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "oidc-provider",
	Short: "OAuth 2.0 / OpenID Connect authorization server",
	Long: "oidc-provider issues authorization codes, access, refresh and ID tokens to registered clients.\n\n" +
		"Run 'oidc-provider serve' to start the HTTP server.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadEnv(cmd.Context(), envFile); err != nil {
			return err
		}
		cfg = config.New(v)
		logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	flags.String("env", "", "Environment name (DEV, TEST, PROD)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("database-driver", "", "Storage backend: memory, postgres or sqlite")
	flags.String("database-url", "", "Postgres DSN or SQLite file path")
	flags.String("users-file", "", "YAML file holding the resource owners")

	bindFlag(config.KeyEnv, "env")
	bindFlag(config.KeyLogLevel, "log-level")
	bindFlag(config.KeyDatabaseDriver, "database-driver")
	bindFlag(config.KeyDatabaseURL, "database-url")
	bindFlag(config.KeyUsersFile, "users-file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedClientsCmd)
	rootCmd.AddCommand(keygenCmd)
}

// bindFlag lets a persistent flag override the environment, but only when
// it was given on the command line.
func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}
