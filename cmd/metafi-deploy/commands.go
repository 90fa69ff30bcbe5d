package main

import (
	"fmt"

	"github.com/metafi/lending-deploy/framework"
	"github.com/metafi/lending-deploy/lending"
	"github.com/metafi/lending-deploy/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (a *app) deployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   cmdDeploy,
		Short: "Deploy " + lending.ContractName + " (same as running without a subcommand)",
		Args:  cobra.NoArgs,
		RunE:  a.runDeploy,
	}
}

func (a *app) runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, err := a.frameworkConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	fr, err := framework.New(ctx, cfg, a.log)
	if err != nil {
		return err
	}
	defer fr.Close()

	_, err = lending.Deploy(ctx, lending.FrameworkDeployer(fr), a.stdout)
	return err
}

func (a *app) registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   cmdRegistry,
		Short: "Serve recorded deployments over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listenAddr := a.v.GetString(flagListenAddr)
			records := framework.NewRecordStore(a.v.GetString(flagDeploymentsDir))

			srv := registry.NewService(a.log, listenAddr, records)
			a.log.Println("listening on", listenAddr)
			return srv.StartHTTPServer(cmd.Context())
		},
	}
	return localFlags(cmd, func(fs *pflag.FlagSet) {
		fs.String(flagListenAddr, defaultListenAddr, "address the registry listens on")
	})
}

func (a *app) addressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   cmdAddress,
		Short: "Print the recorded address of a deployed contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records := framework.NewRecordStore(a.v.GetString(flagDeploymentsDir))
			record, err := records.Load(a.v.GetString(flagNetwork), a.v.GetString(flagContract))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, record.Address.Hex())
			return nil
		},
	}
	return localFlags(cmd, func(fs *pflag.FlagSet) {
		fs.String(flagContract, lending.ContractName, "contract name")
	})
}
