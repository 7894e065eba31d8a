// Package config loads application configuration from config.yaml and the
// environment. Environment variables (prefix COINHARBOR_) override file
// values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Database struct {
		DSN             string `mapstructure:"dsn"`
		MaxOpenConns    int    `mapstructure:"max_open_conns"`
		MaxIdleConns    int    `mapstructure:"max_idle_conns"`
		ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
	} `mapstructure:"database"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Kafka KafkaConfig `mapstructure:"kafka"`

	JWT struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`

	Wallet WalletConfig `mapstructure:"wallet"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// KafkaConfig describes the transport. The order-book log topic is
// provisioned with exactly one partition: candle aggregation requires one
// globally ordered stream, so every log event is published under a single
// shared key. The command topic is keyed per product and may be partitioned.
type KafkaConfig struct {
	Brokers             []string      `mapstructure:"brokers"`
	CommandTopic        string        `mapstructure:"command_topic"`
	CommandPartitions   int           `mapstructure:"command_partitions"`
	MessageTopic        string        `mapstructure:"message_topic"`
	OrderBookLogTopic   string        `mapstructure:"order_book_log_topic"`
	ConsumerGroupPrefix string        `mapstructure:"consumer_group_prefix"`
	PollTimeout         time.Duration `mapstructure:"poll_timeout"`
	CommitThreshold     int           `mapstructure:"commit_threshold"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
}

// WalletConfig selects the blockchain collaborators and the reconciliation
// cadence. Exactly one of the real or mock Bitcoin services is wired at
// startup depending on Bitcoin.Enabled.
type WalletConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`

	Bitcoin struct {
		Enabled          bool   `mapstructure:"enabled"`
		RPCURL           string `mapstructure:"rpc_url"`
		RPCUsername      string `mapstructure:"rpc_username"`
		RPCPassword      string `mapstructure:"rpc_password"`
		MinConfirmations int    `mapstructure:"min_confirmations"`
	} `mapstructure:"bitcoin"`

	Ethereum struct {
		Enabled          bool   `mapstructure:"enabled"`
		RPCURL           string `mapstructure:"rpc_url"`
		Account          string `mapstructure:"account"`
		MinConfirmations int    `mapstructure:"min_confirmations"`
	} `mapstructure:"ethereum"`
}

// LoadConfig reads config.yaml from the working directory (optional) and
// applies environment overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("COINHARBOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.dsn", "host=localhost user=coinharbor password=coinharbor dbname=coinharbor port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.command_topic", "matching-engine-command")
	v.SetDefault("kafka.command_partitions", 12)
	v.SetDefault("kafka.message_topic", "matching-engine-message")
	v.SetDefault("kafka.order_book_log_topic", "order-book-log")
	v.SetDefault("kafka.consumer_group_prefix", "coinharbor")
	v.SetDefault("kafka.poll_timeout", 5*time.Second)
	v.SetDefault("kafka.commit_threshold", 10)
	v.SetDefault("kafka.write_timeout", time.Second)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("wallet.enabled", true)
	v.SetDefault("wallet.scan_interval", time.Minute)
	v.SetDefault("wallet.bitcoin.enabled", false)
	v.SetDefault("wallet.bitcoin.min_confirmations", 6)
	v.SetDefault("wallet.ethereum.enabled", false)
	v.SetDefault("wallet.ethereum.min_confirmations", 12)

	v.SetDefault("logging.level", "info")
}
