package main

import (
	"context"
	"sync"

	"github.com/fixkme/fastgrpc/framework/app"
	"github.com/fixkme/fastgrpc/framework/config"
	"github.com/fixkme/fastgrpc/framework/core"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(cfgFile, envFiles...); err != nil {
			return err
		}
		conf := config.Config
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		wg := &sync.WaitGroup{}
		defer wg.Wait()
		if err := initLog(ctx, wg, &conf.Log); err != nil {
			return err
		}
		mlog.Debugf("config: %s", conf.JsonFormat())

		if len(conf.Redis.Addrs) > 0 {
			if err := core.InitRedis(ctx, &conf.Redis); err != nil {
				return err
			}
			defer core.Redis.Stop()
		}
		if conf.Mongo.Uri != "" {
			if err := core.InitMongo(&conf.Mongo); err != nil {
				return err
			}
			defer core.Mongo.Stop(context.Background())
		}

		var mods []app.Module
		if conf.Metrics.Enable {
			if err := core.InitMetricsModule(conf.Metrics.Addr); err != nil {
				return err
			}
			mods = append(mods, core.Metrics)
		}
		if err := core.InitRpcModule("rpc", conf, build); err != nil {
			return err
		}
		mods = append(mods, core.Rpc)
		return app.DefaultApp().Run(ctx, mods...)
	},
}

func initLog(ctx context.Context, wg *sync.WaitGroup, conf *config.LogConfig) error {
	level, err := mlog.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	if conf.LogPath == "" {
		return mlog.UseStdLogger(level)
	}
	return mlog.UseDefaultLogger(ctx, wg, conf.LogPath, conf.LogName, level, conf.LogStdOut)
}
