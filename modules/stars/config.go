package stars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NebulousLabs/errors"
	"github.com/starslab/stars/modules"
)

// aliasTable is a bijection between alias and real node name: both
// directions are plain maps, giving O(1) lookup either way. Loaded once at
// startup and never mutated afterward; the configuration snapshot is
// immutable for the life of the process.
type aliasTable struct {
	aliasToReal map[string]string
	realToAlias map[string]string
}

func newAliasTable() aliasTable {
	return aliasTable{
		aliasToReal: make(map[string]string),
		realToAlias: make(map[string]string),
	}
}

func (t *aliasTable) add(alias, real string) error {
	if alias == real {
		return errors.Extend(fmt.Errorf("alias %q cannot equal its own real name", alias), modules.ErrConfigLoad)
	}
	if existing, ok := t.aliasToReal[alias]; ok && existing != real {
		return errors.Extend(fmt.Errorf("alias %q already maps to %q", alias, existing), modules.ErrConfigLoad)
	}
	if _, isRealElsewhere := t.realToAlias[alias]; isRealElsewhere {
		return errors.Extend(fmt.Errorf("alias %q is itself a real name of another entry", alias), modules.ErrConfigLoad)
	}
	if _, aliasIsReal := t.aliasToReal[real]; aliasIsReal {
		return errors.Extend(fmt.Errorf("real name %q is itself used as an alias", real), modules.ErrConfigLoad)
	}
	if existing, ok := t.realToAlias[real]; ok && existing != alias {
		return errors.Extend(fmt.Errorf("real name %q already has alias %q", real, existing), modules.ErrConfigLoad)
	}
	t.aliasToReal[alias] = real
	t.realToAlias[real] = alias
	return nil
}

// resolve substitutes name with its real name if name is an alias. Aliases
// are resolved exactly once; there is no chaining, so the result of resolve
// is always idempotent under a second application.
func (t aliasTable) resolve(name string) string {
	if real, ok := t.aliasToReal[name]; ok {
		return real
	}
	return name
}

// ConfigSnapshot is the immutable-after-load configuration used by every
// policy decision in the server. It is constructed once by LoadConfig and
// shared by reference, without locking, for the life of the process.
type ConfigSnapshot struct {
	Port int

	hostAllow          PatternSet
	commandAllow       PatternSet
	commandDeny        PatternSet
	aliases            aliasTable
	reconnectableFrom  PatternSet
	reconnectableName  PatternSet
	shutdownAllow      PatternSet
	perNodeAllow       map[string]PatternSet
	secret             []byte
}

// LoadConfig reads every pattern file out of libDir and the server secret
// out of keyDir, compiling and validating all of it before returning. Any
// malformed pattern or missing required file aborts with ErrConfigLoad; the
// caller (cmd/stars) is expected to treat that as fatal and exit before
// binding the listener.
func LoadConfig(libDir, keyDir string, port int) (*ConfigSnapshot, error) {
	cfg := &ConfigSnapshot{
		Port:         port,
		aliases:      newAliasTable(),
		perNodeAllow: make(map[string]PatternSet),
	}

	var err error
	if cfg.hostAllow, err = loadPatternFile(filepath.Join(libDir, "allow.cfg")); err != nil {
		return nil, err
	}
	if cfg.commandAllow, err = loadPatternFile(filepath.Join(libDir, "command_allow.cfg")); err != nil {
		return nil, err
	}
	if cfg.commandDeny, err = loadPatternFile(filepath.Join(libDir, "command_deny.cfg")); err != nil {
		return nil, err
	}
	if cfg.reconnectableFrom, err = loadPatternFile(filepath.Join(libDir, "reconnectable_from.cfg")); err != nil {
		return nil, err
	}
	if cfg.reconnectableName, err = loadPatternFile(filepath.Join(libDir, "reconnectable_name.cfg")); err != nil {
		return nil, err
	}
	if cfg.shutdownAllow, err = loadPatternFile(filepath.Join(libDir, "shutdown_allow.cfg")); err != nil {
		return nil, err
	}

	aliasLines, err := readNonEmptyLines(filepath.Join(libDir, "aliases.cfg"))
	if err != nil {
		return nil, err
	}
	for _, line := range aliasLines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Extend(fmt.Errorf("malformed alias line: %q", line), modules.ErrConfigLoad)
		}
		if err := cfg.aliases.add(fields[0], fields[1]); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadPerNodeAllow(libDir); err != nil {
		return nil, err
	}

	secret, err := os.ReadFile(filepath.Join(keyDir, secretFileName))
	if err != nil {
		return nil, errors.Extend(err, modules.ErrConfigLoad)
	}
	cfg.secret = secret

	return cfg, nil
}

// loadPerNodeAllow eagerly scans libDir for "<name>.allow" files. Eager
// rather than lazy: the whole snapshot is built once at startup and shared
// immutably thereafter, so there is no benefit to deferring the scan into
// the registration hot path, and eager loading keeps LoadConfig the single
// place a ConfigLoad error can originate from.
func (cfg *ConfigSnapshot) loadPerNodeAllow(libDir string) error {
	entries, err := os.ReadDir(libDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Extend(err, modules.ErrConfigLoad)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".allow") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".allow")
		set, err := loadPatternFile(filepath.Join(libDir, entry.Name()))
		if err != nil {
			return err
		}
		cfg.perNodeAllow[name] = set
	}
	return nil
}

// HostAllowed reports whether a connection under node name N from a host
// identified by either hostname or ip (either may satisfy the match) is
// permitted. Per-node allow files are additive: H must match host_allow
// AND, if a per-node file exists for N, H must also match that file.
func (cfg *ConfigSnapshot) HostAllowed(hostname, ip, nodeName string) bool {
	if !cfg.hostAllow.MatchAny(hostname) && !cfg.hostAllow.MatchAny(ip) {
		return false
	}
	perNode, exists := cfg.perNodeAllow[nodeName]
	if !exists {
		return true
	}
	return perNode.MatchAny(hostname) || perNode.MatchAny(ip)
}

// CommandAllowed reports whether cmd may be dispatched: it must not match
// any deny pattern, and if any allow patterns exist it must match at least
// one of them.
func (cfg *ConfigSnapshot) CommandAllowed(cmd string) bool {
	if cfg.commandDeny.MatchAny(cmd) {
		return false
	}
	if len(cfg.commandAllow) == 0 {
		return true
	}
	return cfg.commandAllow.MatchAny(cmd)
}

// ResolveAlias substitutes name with its real node name if it names an
// alias, otherwise returns name unchanged.
func (cfg *ConfigSnapshot) ResolveAlias(name string) string {
	return cfg.aliases.resolve(name)
}

// Reconnectable reports whether a new connection from the given host,
// registering under name, has the right to evict an existing registration
// under that same name.
func (cfg *ConfigSnapshot) Reconnectable(hostname, ip, name string) bool {
	hostOK := cfg.reconnectableFrom.MatchAny(hostname) || cfg.reconnectableFrom.MatchAny(ip)
	return hostOK && cfg.reconnectableName.MatchAny(name)
}

// ShutdownAllowed reports whether name may issue the shutdownserver
// built-in.
func (cfg *ConfigSnapshot) ShutdownAllowed(name string) bool {
	return cfg.shutdownAllow.MatchAny(name)
}

// Secret returns the server's challenge secret, loaded once from keyDir.
func (cfg *ConfigSnapshot) Secret() []byte {
	return cfg.secret
}
