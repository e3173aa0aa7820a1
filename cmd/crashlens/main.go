package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "crashlens",
		Short:         "Analyze Minecraft logs and crash reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml)")

	root.AddCommand(analyzeCMD(&cfgPath), serveCMD(&cfgPath), migrateCMD(&cfgPath), tokenCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
