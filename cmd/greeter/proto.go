package main

import (
	"fmt"

	"github.com/fixkme/fastgrpc/framework/config"
	"github.com/fixkme/fastgrpc/framework/core"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/server"
	"github.com/spf13/cobra"
)

var protoOut string

var protoCmd = &cobra.Command{
	Use:   "proto",
	Short: "Print the generated .proto files, or write them with --out",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(cfgFile, envFiles...)
		if err != nil {
			return err
		}
		docs, err := generate(conf)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if protoOut == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "// %s\n%s", doc.Path, doc.Content)
				continue
			}
			wrote, err := protogen.WriteFile(protoOut, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s written=%t digest=%s\n", doc.Path, wrote, doc.Digest)
		}
		return nil
	},
}

func init() {
	protoCmd.Flags().StringVarP(&protoOut, "out", "o", "", "directory to write the .proto files into")
}

func generate(conf *config.AppConfig) ([]*protogen.Document, error) {
	a := server.New(core.ServerOptions(conf, nil)...)
	if err := build(a); err != nil {
		return nil, err
	}
	bundle, err := protogen.Build(a.Services())
	if err != nil {
		return nil, err
	}
	return bundle.Documents, nil
}
