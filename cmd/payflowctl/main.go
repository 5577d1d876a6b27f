package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "payflowctl",
		Short:         "Operate payflow payments, wallets and settlements",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Emit service logs at info level")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "Overall command timeout")

	rootCmd.AddCommand(settlementsCmd(opts))
	rootCmd.AddCommand(walletCmd(opts))
	rootCmd.AddCommand(paymentsCmd(opts))
	rootCmd.AddCommand(schedulerCmd(opts))
	return rootCmd
}
