package config

import (
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"`
}

type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

type TimeoutConfig struct {
	ConnectSeconds int `mapstructure:"connect_seconds"`
	RequestSeconds int `mapstructure:"request_seconds"`
	HistorySeconds int `mapstructure:"history_seconds"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Chat     ChatConfig    `mapstructure:"chat"`
	Timeouts TimeoutConfig `mapstructure:"timeouts"`
	Log      LogConfig     `mapstructure:"log"`

	// derived
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	HistoryTimeout time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NOVACK_CHAT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.Server.URL == "" {
		c.Server.URL = "ws://localhost:8080/chat"
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Timeouts.ConnectSeconds == 0 {
		c.Timeouts.ConnectSeconds = 10
	}
	if c.Timeouts.RequestSeconds == 0 {
		c.Timeouts.RequestSeconds = 5
	}
	if c.Timeouts.HistorySeconds == 0 {
		c.Timeouts.HistorySeconds = 15
	}
	c.ConnectTimeout = time.Duration(c.Timeouts.ConnectSeconds) * time.Second
	c.RequestTimeout = time.Duration(c.Timeouts.RequestSeconds) * time.Second
	c.HistoryTimeout = time.Duration(c.Timeouts.HistorySeconds) * time.Second
	return &c, nil
}
