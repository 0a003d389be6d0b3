// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/qemu"
	"github.com/aibor/ezkvm/internal/sys"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "EZKVM"
	defaultConfigDir  = "/etc/ezkvm"
	defaultConfigName = "ezkvm"
)

// Config is the runtime configuration. Values are taken from flags,
// environment variables prefixed with EZKVM_ and the config file, in this
// order of precedence.
type Config struct {
	ResourceDir  string        `mapstructure:"resource-dir"`
	LockDir      string        `mapstructure:"lock-dir"`
	MachineDir   string        `mapstructure:"machine-dir"`
	RunDir       string        `mapstructure:"run-dir"`
	QEMUBin      string        `mapstructure:"qemu-bin"`
	StartTimeout time.Duration `mapstructure:"start-timeout"`
	StopTimeout  time.Duration `mapstructure:"stop-timeout"`
	LockTimeout  time.Duration `mapstructure:"lock-timeout"`
	Exclusive    bool          `mapstructure:"exclusive"`
	NoKVM        bool          `mapstructure:"no-kvm"`
	Debug        bool          `mapstructure:"debug"`
	LogLevel     string        `mapstructure:"log-level"`
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "",
		"config file (default "+defaultConfigDir+"/"+defaultConfigName+".yaml)")
	flags.String("resource-dir", ledger.DefaultResourceDir,
		"directory with resource pool definitions")
	flags.String("lock-dir", ledger.DefaultLockDir,
		"directory with lock files of running VMs")
	flags.String("machine-dir", "/etc/ezkvm/machines",
		"directory with VM definitions")
	flags.String("run-dir", "/var/ezkvm",
		"directory for QMP sockets and QEMU logs")
	flags.String("qemu-bin", qemu.DefaultExecutable,
		"QEMU binary used if the VM definition does not name one")
	flags.Duration("start-timeout", qemu.DefaultStartTimeout,
		"time QEMU must keep running for a start to succeed")
	flags.Duration("stop-timeout", time.Minute,
		"time to wait for a VM to exit on stop and hibernate")
	flags.Duration("lock-timeout", 30*time.Second,
		"time to wait for other ezkvm invocations to finish")
	flags.Bool("exclusive", true,
		"serialize ledger access with other ezkvm invocations")
	flags.Bool("no-kvm", false,
		"disable KVM acceleration")
	flags.Bool("debug", false,
		"enable debug logging")
	flags.String("log-level", "warn",
		"log level: debug, info, warn or error")
}

// loadConfig reads the configuration from the given flags, environment and
// config file.
func loadConfig(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	err := v.BindPFlags(flags)
	if err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	err = readConfigFile(v, v.GetString("config"))
	if err != nil {
		return Config{}, err
	}

	var cfg Config

	err = v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config: %w", ErrUsage, err)
	}

	err = cfg.absolutePaths()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// absolutePaths resolves all directories relative to the working directory.
func (c *Config) absolutePaths() error {
	dirs := map[string]*string{
		"resource-dir": &c.ResourceDir,
		"lock-dir":     &c.LockDir,
		"machine-dir":  &c.MachineDir,
		"run-dir":      &c.RunDir,
	}

	for key, dir := range dirs {
		abs, err := sys.AbsolutePath(*dir)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUsage, key, err)
		}

		*dir = abs
	}

	return nil
}

// readConfigFile reads the given config file. If none is given, the default
// one is read if it exists.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir)
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("read config: %w", err)
	}

	return nil
}
