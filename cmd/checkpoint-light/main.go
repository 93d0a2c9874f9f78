package main

import (
	"os"

	"github.com/spf13/viper"

	"github.com/tendermint/checkpoint-light/cmd/checkpoint-light/commands"
	"github.com/tendermint/checkpoint-light/libs/cli"
)

func main() {
	v := viper.New()
	rootCmd := commands.NewRootCmd(v)
	os.Exit(cli.Execute(rootCmd, v, os.Stderr))
}
