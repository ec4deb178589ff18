/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config reads the papercli configuration from the config file,
// dotenv files and the environment
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultStrategy is the conflict strategy used when none is configured
	DefaultStrategy = reconcile.PreferLocal
	// DefaultAutoSyncInterval is the auto-sync period used when none is configured
	DefaultAutoSyncInterval = 5 * time.Minute
	// MinAutoSyncInterval is the shortest accepted auto-sync period
	MinAutoSyncInterval = 10 * time.Second
)

// The environment variables overriding the config file
const (
	EnvRemotePath       = "PAPERCLI_REMOTE_PATH"
	EnvAutoSync         = "PAPERCLI_AUTO_SYNC"
	EnvStrategy         = "PAPERCLI_SYNC_STRATEGY"
	EnvAutoSyncInterval = "PAPERCLI_AUTO_SYNC_INTERVAL"
)

var (
	// ErrInvalidInterval is returned for an unparsable or too short
	// auto-sync interval
	ErrInvalidInterval = errors.New("invalid auto-sync interval")
	// ErrInvalidAutoSync is returned when the auto-sync switch is not a boolean
	ErrInvalidAutoSync = errors.New("invalid auto-sync value")
	// ErrRelativeRemotePath is returned for a remote path that is not absolute
	ErrRelativeRemotePath = errors.New("remote path must be absolute")
	// ErrAutoSyncWithoutRemote is returned when auto-sync is on but no remote
	// path is set
	ErrAutoSyncWithoutRemote = errors.New("auto-sync requires a remote path")
)

// Duration is a time.Duration written as "5m" in the config file
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(ErrInvalidInterval, "'%s'", s)
	}
	*d = Duration(v)

	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}

	return time.Duration(d).String(), nil
}

// Config holds papercli configuration
type Config struct {
	RemotePath       string             `yaml:"remotePath"`
	Strategy         reconcile.Strategy `yaml:"strategy"`
	AutoSync         bool               `yaml:"autoSync"`
	AutoSyncInterval Duration           `yaml:"autoSyncInterval"`
}

// Interval returns the auto-sync interval
func (c Config) Interval() time.Duration {
	return time.Duration(c.AutoSyncInterval)
}

// Default returns the configuration used when there is no config file
func Default() Config {
	return Config{
		Strategy:         DefaultStrategy,
		AutoSyncInterval: Duration(DefaultAutoSyncInterval),
	}
}

// GetPath returns the path to the papercli config file
func GetPath(ctx context.PaperCtx) string {
	return filepath.Join(ctx.ConfigDir(), consts.ConfigFilename)
}

// Read reads the config file. A missing file yields the defaults.
func Read(ctx context.PaperCtx) (Config, error) {
	ret := Default()

	b, err := os.ReadFile(GetPath(ctx))
	if os.IsNotExist(err) {
		return ret, nil
	}
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	if err := yaml.Unmarshal(b, &ret); err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return ret, nil
}

// Write writes the config to the config file
func Write(ctx context.PaperCtx, cf Config) error {
	path := GetPath(ctx)

	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "creating the config directory")
	}
	if err := utils.WriteFileAtomic(path, b, 0644); err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// LookupFunc looks up a setting by its environment variable name
type LookupFunc func(key string) (string, bool)

// Env returns a lookup reading the process environment first, then the
// dotenv file in the config directory, then ./.env
func Env(ctx context.PaperCtx) (LookupFunc, error) {
	files := []string{
		filepath.Join(ctx.ConfigDir(), consts.EnvFilename),
		consts.EnvFilename,
	}

	vals := map[string]string{}
	for i := len(files) - 1; i >= 0; i-- {
		ok, err := utils.FileExists(files[i])
		if err != nil {
			return nil, errors.Wrapf(err, "checking %s", files[i])
		}
		if !ok {
			continue
		}

		m, err := godotenv.Read(files[i])
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", files[i])
		}
		for k, v := range m {
			vals[k] = v
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := vals[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides the config with the settings found by lookup
func ApplyEnv(cf Config, lookup LookupFunc) (Config, error) {
	if v, ok := lookup(EnvRemotePath); ok {
		cf.RemotePath = v
	}
	if v, ok := lookup(EnvStrategy); ok && v != "" {
		cf.Strategy = reconcile.Strategy(v)
	}
	if v, ok := lookup(EnvAutoSync); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return cf, errors.Wrapf(ErrInvalidAutoSync, "%s='%s'", EnvAutoSync, v)
		}
		cf.AutoSync = b
	}
	if v, ok := lookup(EnvAutoSyncInterval); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return cf, errors.Wrapf(ErrInvalidInterval, "%s='%s'", EnvAutoSyncInterval, v)
		}
		cf.AutoSyncInterval = Duration(d)
	}

	return cf, nil
}

// expandHome expands a leading "~" to the home directory
func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}

	return path
}

// Normalize fills in defaults, expands the remote path and validates the
// config
func Normalize(cf Config, home string) (Config, error) {
	if cf.Strategy == "" {
		cf.Strategy = DefaultStrategy
	}
	strategy, err := reconcile.ParseStrategy(string(cf.Strategy))
	if err != nil {
		return cf, err
	}
	cf.Strategy = strategy

	if cf.AutoSyncInterval == 0 {
		cf.AutoSyncInterval = Duration(DefaultAutoSyncInterval)
	}
	if cf.Interval() < MinAutoSyncInterval {
		return cf, errors.Wrapf(ErrInvalidInterval, "%s is shorter than %s", cf.Interval(), MinAutoSyncInterval)
	}

	cf.RemotePath = strings.TrimSpace(cf.RemotePath)
	if cf.RemotePath != "" {
		cf.RemotePath = filepath.Clean(expandHome(cf.RemotePath, home))
		if !filepath.IsAbs(cf.RemotePath) {
			return cf, errors.Wrapf(ErrRelativeRemotePath, "'%s'", cf.RemotePath)
		}
	}

	if cf.AutoSync && cf.RemotePath == "" {
		return cf, ErrAutoSyncWithoutRemote
	}

	return cf, nil
}

// Load resolves the configuration from the config file, the dotenv files
// and the environment
func Load(ctx context.PaperCtx) (Config, error) {
	cf, err := Read(ctx)
	if err != nil {
		return cf, err
	}

	lookup, err := Env(ctx)
	if err != nil {
		return cf, errors.Wrap(err, "reading the environment")
	}
	cf, err = ApplyEnv(cf, lookup)
	if err != nil {
		return cf, err
	}

	return Normalize(cf, ctx.Paths.Home)
}
