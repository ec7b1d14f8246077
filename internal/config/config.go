// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	SlaveID   byte             `mapstructure:"slave_id"`
	Listeners []ListenerConfig `mapstructure:"listeners"`
	Device    DeviceConfig     `mapstructure:"device"`
	Log       LogConfig        `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ListenerConfig defines one transport front-end of the device
type ListenerConfig struct {
	Type   string       `mapstructure:"type"`   // "tcp" or "rtu"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
}

// DeviceConfig defines the local device state
type DeviceConfig struct {
	AllowedHosts []string          `mapstructure:"allowed_hosts"` // Access table seed, in addition to loopback
	Identity     IdentityConfig    `mapstructure:"identity"`
	Persistence  PersistenceConfig `mapstructure:"persistence"`
}

// IdentityConfig seeds the standard device identification objects
type IdentityConfig struct {
	VendorName          string `mapstructure:"vendor_name"`
	ProductCode         string `mapstructure:"product_code"`
	MajorMinorRevision  string `mapstructure:"major_minor_revision"`
	VendorURL           string `mapstructure:"vendor_url"`
	ProductName         string `mapstructure:"product_name"`
	ModelName           string `mapstructure:"model_name"`
	UserApplicationName string `mapstructure:"user_application_name"`
}

// PersistenceConfig defines register data storage settings
type PersistenceConfig struct {
	Type   string `mapstructure:"type"`   // "memory", "file", "mmap", "sql"
	Path   string `mapstructure:"path"`   // File path for "file"/"mmap", DSN for "sql"
	Driver string `mapstructure:"driver"` // SQL driver name, e.g. "sqlite3"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from the command line and config file
func LoadConfig(args []string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("slave_id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("device.persistence.type", "memory")

	// Command line flags
	flags := pflag.NewFlagSet("modbus-device", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "Configuration file path.")
	flags.IntP("slave_id", "i", v.GetInt("slave_id"), "Slave ID the device answers to.")
	flags.StringP("log.level", "v", v.GetString("log.level"), "Log verbosity level (debug, info, warn, error).")
	flags.StringP("log.file", "L", v.GetString("log.file"), "Log file name ('' for logging to STDOUT).")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind pflags: %w", err)
	}

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusdev/")
		v.AddConfigPath("$HOME/.modbusdev")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when everything comes from
		// flags and defaults; an explicitly named one must exist.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Listeners {
		fixupSerial(&config.Listeners[i].Serial)
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.BaudRate == 0 {
		s.BaudRate = 19200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}
