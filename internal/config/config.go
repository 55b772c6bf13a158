// Package config loads the runtime INI file and layers CLI overrides on top
// of it, producing the three values the rest of the program needs to start:
// the port to bind, the directory holding pattern files, and the directory
// holding the challenge secret.
package config

import (
	"os"

	"github.com/NebulousLabs/errors"
	"gopkg.in/ini.v1"

	"github.com/starslab/stars/modules"
)

const (
	defaultPort   = 6057
	defaultLibDir = "."
	defaultKeyDir = "."
)

// RuntimeConfig is the resolved set of settings a Server needs, after
// merging the INI file (if any) with CLI flag overrides.
type RuntimeConfig struct {
	Port   int
	LibDir string
	KeyDir string
}

// Load reads iniPath (if non-empty and it exists) for the starsport,
// starslib, and starskey keys, then applies any CLI overrides that are
// non-zero. An empty iniPath, or one that names a file that does not exist,
// is not an error; built-in defaults apply. A present-but-malformed file is
// an error.
func Load(iniPath string, portOverride int, libDirOverride, keyDirOverride string) (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{
		Port:   defaultPort,
		LibDir: defaultLibDir,
		KeyDir: defaultKeyDir,
	}

	if iniPath != "" {
		if _, err := os.Stat(iniPath); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Extend(err, modules.ErrConfigLoad)
			}
			return finish(cfg, portOverride, libDirOverride, keyDirOverride), nil
		}

		file, err := ini.Load(iniPath)
		if err != nil {
			return nil, errors.Extend(err, modules.ErrConfigLoad)
		}
		section := file.Section("")
		if key := section.Key("starsport"); key.String() != "" {
			port, err := key.Int()
			if err != nil {
				return nil, errors.Extend(err, modules.ErrConfigLoad)
			}
			cfg.Port = port
		}
		if key := section.Key("starslib"); key.String() != "" {
			cfg.LibDir = key.String()
		}
		if key := section.Key("starskey"); key.String() != "" {
			cfg.KeyDir = key.String()
		}
	}

	return finish(cfg, portOverride, libDirOverride, keyDirOverride), nil
}

// finish layers the CLI overrides, which take precedence over both the INI
// file and the built-in defaults, onto cfg.
func finish(cfg *RuntimeConfig, portOverride int, libDirOverride, keyDirOverride string) *RuntimeConfig {
	if portOverride != 0 {
		cfg.Port = portOverride
	}
	if libDirOverride != "" {
		cfg.LibDir = libDirOverride
	}
	if keyDirOverride != "" {
		cfg.KeyDir = keyDirOverride
	}
	return cfg
}
