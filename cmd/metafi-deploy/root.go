package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/metafi/lending-deploy/framework"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "METAFI"

	cmdDeploy   = "deploy"
	cmdRegistry = "registry"
	cmdAddress  = "address"

	flagConfig         = "config"
	flagLogLevel       = "log-level"
	flagNetwork        = "network"
	flagRPCURL         = "rpc-url"
	flagPrivateKey     = "private-key"
	flagArtifactsDir   = "artifacts-dir"
	flagDeploymentsDir = "deployments-dir"
	flagConfirmTimeout = "confirm-timeout"
	flagListenAddr     = "listen-addr"
	flagContract       = "contract"

	defaultListenAddr = "localhost:18550"
)

type app struct {
	v      *viper.Viper
	log    *logrus.Entry
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metafi-deploy",
		Short: "Deploy the MetaFi lending platform contract",
		Long: `Deploys the precompiled MetaFiLendingPlatform contract with its fixed
constructor arguments and prints the deployed address.

Settings come from flags, METAFI_* environment variables (METAFI_RPC_URL,
METAFI_PRIVATE_KEY, ...) or a config file, in that order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runDeploy,
	}

	flags := root.PersistentFlags()
	flags.String(flagConfig, "", "config file (json, yaml or toml)")
	flags.String(flagLogLevel, logrus.InfoLevel.String(), "log level (trace, debug, info, warn, error)")
	flags.String(flagNetwork, framework.DefaultNetwork, "network name used for deployment records")
	flags.String(flagRPCURL, framework.DefaultRPCURL, "JSON-RPC endpoint of the target chain")
	flags.String(flagPrivateKey, framework.DefaultPrivKeyHex, "hex encoded deployer private key")
	flags.String(flagArtifactsDir, framework.DefaultArtifactsDir, "directory holding compiled contract artifacts")
	flags.String(flagDeploymentsDir, framework.DefaultDeploymentsDir, "directory deployment records are written to")
	flags.Duration(flagConfirmTimeout, framework.DefaultConfirmTimeout, "how long to wait for a transaction to be mined")

	root.AddCommand(a.deployCmd(), a.registryCmd(), a.addressCmd())
	return root
}

// setup loads configuration and the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString(flagConfig); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
	}

	lvl, err := logrus.ParseLevel(a.v.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("invalid loglevel: %w", err)
	}
	a.log = newLogger(a.stderr, lvl)
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.WithField("file", used).Debug("using config file")
	}
	return nil
}

func (a *app) frameworkConfig() (*framework.Config, error) {
	cfg := &framework.Config{
		Network:        a.v.GetString(flagNetwork),
		RPCURL:         a.v.GetString(flagRPCURL),
		PrivKeyHex:     a.v.GetString(flagPrivateKey),
		ArtifactsDir:   a.v.GetString(flagArtifactsDir),
		DeploymentsDir: a.v.GetString(flagDeploymentsDir),
		ConfirmTimeout: a.v.GetDuration(flagConfirmTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// localFlags registers flags that only apply to one subcommand.
func localFlags(cmd *cobra.Command, register func(*pflag.FlagSet)) *cobra.Command {
	register(cmd.Flags())
	return cmd
}
