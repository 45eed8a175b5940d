package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	mdb "github.com/fixkme/fastgrpc/db/mongo"
	rdb "github.com/fixkme/fastgrpc/db/redis"
	"github.com/fixkme/fastgrpc/servicediscovery/impl/etcd"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 FASTGRPC_SERVER_LISTEN_ADDR
const EnvPrefix = "FASTGRPC"

var Config *AppConfig

type AppConfig struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Proto     ProtoConfig     `json:"proto" mapstructure:"proto"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
	Discovery etcd.EtcdOpt    `json:"discovery" mapstructure:"discovery"`
	Redis     rdb.RedisConf   `json:"redis" mapstructure:"redis"`
	Mongo     mdb.MongoConf   `json:"mongo" mapstructure:"mongo"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
	IsDebug   bool            `json:"is_debug" mapstructure:"is_debug"`
}

type ServerConfig struct {
	Name            string `json:"name" mapstructure:"name"`
	ListenAddr      string `json:"listen_addr" mapstructure:"listen_addr"`
	AdvertiseAddr   string `json:"advertise_addr" mapstructure:"advertise_addr"` //注册到etcd的地址, 为空时使用监听地址
	Reflection      bool   `json:"reflection" mapstructure:"reflection"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` //秒
}

type ProtoConfig struct {
	Path       string   `json:"path" mapstructure:"path"`
	AutoGen    bool     `json:"auto_gen" mapstructure:"auto_gen"`
	OutDir     string   `json:"out_dir" mapstructure:"out_dir"`
	Protoc     string   `json:"protoc" mapstructure:"protoc"`
	GoOut      string   `json:"go_out" mapstructure:"go_out"`
	GoGRPCOut  string   `json:"go_grpc_out" mapstructure:"go_grpc_out"`
	IncludeDir []string `json:"include_dir" mapstructure:"include_dir"`
}

type LogConfig struct {
	LogPath   string `json:"log_path" mapstructure:"log_path"`
	LogName   string `json:"log_name" mapstructure:"log_name"`
	LogLevel  string `json:"log_level" mapstructure:"log_level"`
	LogStdOut bool   `json:"log_std_out" mapstructure:"log_std_out"`
}

type MetricsConfig struct {
	Enable    bool   `json:"enable" mapstructure:"enable"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Addr      string `json:"addr" mapstructure:"addr"` //prometheus 抓取地址
}

type RateLimitConfig struct {
	Limit float64 `json:"limit" mapstructure:"limit"` //每秒, 0表示不限
	Burst int     `json:"burst" mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "FastGRPC")
	v.SetDefault("server.listen_addr", ":50051")
	v.SetDefault("server.reflection", true)
	v.SetDefault("server.shutdown_timeout", 10)
	v.SetDefault("proto.path", "fast_grpc.proto")
	v.SetDefault("proto.out_dir", ".")
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_std_out", true)
	v.SetDefault("discovery.lease_ttl", 5)
	v.SetDefault("discovery.dial_timeout", 5)
	v.SetDefault("discovery.service_group", "fastgrpc")
	v.SetDefault("redis.mode", rdb.RedisMode_Single)
	v.SetDefault("redis.prefix", rdb.DefaultSchemaPrefix)
	v.SetDefault("mongo.collection", mdb.DefaultSchemaCollection)
	v.SetDefault("metrics.namespace", "fastgrpc")
	v.SetDefault("metrics.addr", ":9090")
}

// LoadConfig 依次读取 .env 文件, 配置文件(可为空), FASTGRPC_ 环境变量, 后者覆盖前者
func LoadConfig(configFile string, envFiles ...string) error {
	conf, err := Load(configFile, envFiles...)
	if err != nil {
		return err
	}
	Config = conf
	return nil
}

func Load(configFile string, envFiles ...string) (*AppConfig, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	conf := new(AppConfig)
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// 未指定时读当前目录的.env, 不存在不算错误
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return godotenv.Load(files...)
}

// AutomaticEnv 只对viper已知的key生效, Unmarshal前把所有字段登记一遍
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"server.name", "server.listen_addr", "server.advertise_addr", "server.reflection", "server.shutdown_timeout",
		"proto.path", "proto.auto_gen", "proto.out_dir", "proto.protoc", "proto.go_out", "proto.go_grpc_out", "proto.include_dir",
		"log.log_path", "log.log_name", "log.log_level", "log.log_std_out",
		"discovery.endpoints", "discovery.lease_ttl", "discovery.service_group", "discovery.dial_timeout",
		"redis.mode", "redis.addrs", "redis.master_name", "redis.username", "redis.password", "redis.db", "redis.prefix",
		"mongo.uri", "mongo.database", "mongo.collection",
		"metrics.enable", "metrics.namespace", "metrics.addr",
		"rate_limit.limit", "rate_limit.burst",
		"is_debug",
	} {
		v.BindEnv(key)
	}
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
