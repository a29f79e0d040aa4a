package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// flagKeys bridges short CLI flag names to config keys. Flags not listed
// map kebab-case to snake_case under their dotted prefix, so --log-level
// becomes log.level.
var flagKeys = map[string]string{
	"input":   "input.path",
	"storage": "storage.kind",
	"dsn":     "storage.dsn",
	"out":     "output.dir",
	"xlsx":    "output.xlsx",
}

// Load resolves configuration. Precedence (highest to lowest):
// flags > SALESROLLUP_ env vars > config file > defaults.
//
// cfgFile may be empty, in which case salesrollup.yaml in the working
// directory is used when present. Only flags that were explicitly set
// override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// SALESROLLUP_STORAGE__DSN -> storage.dsn
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKey(f.Name)
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	cfg.Storage.Kind = strings.ToLower(strings.TrimSpace(cfg.Storage.Kind))
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// flagKey maps a flag name to its config key. Flags unrelated to
// configuration (for example --rebuild) are skipped.
func flagKey(name string) (string, bool) {
	if key, ok := flagKeys[name]; ok {
		return key, true
	}
	for _, section := range []string{"input", "storage", "calendar", "output", "profile", "reports", "lock", "metrics", "log"} {
		if rest, ok := strings.CutPrefix(name, section+"-"); ok {
			return section + "." + strings.ReplaceAll(rest, "-", "_"), true
		}
	}
	return "", false
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range []string{DefaultConfigFile, "salesrollup.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}
