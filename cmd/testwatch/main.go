package main

import (
	"os"

	"github.com/grovetools/testwatch/cli"
	"github.com/grovetools/testwatch/cmd"
	"github.com/grovetools/testwatch/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"testwatch",
		"Live test status for a project workspace",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewSelectCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("testwatch"))

	os.Exit(cli.Execute(rootCmd))
}
