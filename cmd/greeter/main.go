// greeter 示例服务
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "greeter",
	Short: "fastgrpc example greeter service",
	Long: `Greeter serves gRPC methods declared as plain Go functions.

  greeter serve   # start the gRPC server
  greeter proto   # print or write the generated .proto`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (yaml/json/toml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, ".env files to load")
	rootCmd.AddCommand(serveCmd, protoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
