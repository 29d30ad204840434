package logging

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// LevelConfig sets the level of every logger whose name matches Pattern. A "*" matches any run of
// characters, including dots, so "navigation.*" covers all navigation subloggers.
type LevelConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

// e.g. "foo", "foo_bar", "foo-bar" or "*".
const validLoggerName = `^([a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*|\*)(\.([a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*|\*))*$`

var loggerPatternRegexp = regexp.MustCompile(validLoggerName)

// Validate ensures the pattern and level are well formed.
func (lc LevelConfig) Validate() error {
	if !loggerPatternRegexp.MatchString(lc.Pattern) {
		return errors.Errorf("invalid logger pattern %q", lc.Pattern)
	}
	_, err := LevelFromString(lc.Level)
	return err
}

func (lc LevelConfig) matcher() *regexp.Regexp {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range lc.Pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return regexp.MustCompile(matcher.String())
}

// registry tracks named loggers so levels from configuration reach loggers created before and
// after the configuration is applied.
type registry struct {
	mu      sync.RWMutex
	loggers map[string]Logger
	levels  []LevelConfig
}

var globalRegistry = newRegistry()

func newRegistry() *registry {
	return &registry{loggers: make(map[string]Logger)}
}

// getOrRegister returns the logger already registered under name, or registers logger and applies
// any matching configured level to it.
func (lr *registry) getOrRegister(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if existing, ok := lr.loggers[name]; ok {
		return existing
	}
	lr.loggers[name] = logger
	if level, ok := lr.levelFor(name); ok {
		logger.SetLevel(level)
	}
	return logger
}

// levelFor returns the level of the last matching pattern. Callers hold mu.
func (lr *registry) levelFor(name string) (Level, bool) {
	var (
		found bool
		level Level
	)
	for _, lc := range lr.levels {
		if !lc.matcher().MatchString(name) {
			continue
		}
		parsed, err := LevelFromString(lc.Level)
		if err != nil {
			continue
		}
		level, found = parsed, true
	}
	return level, found
}

func (lr *registry) update(levels []LevelConfig) error {
	for _, lc := range levels {
		if err := lc.Validate(); err != nil {
			return err
		}
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.levels = append([]LevelConfig(nil), levels...)
	for name, logger := range lr.loggers {
		if level, ok := lr.levelFor(name); ok {
			logger.SetLevel(level)
		}
	}
	return nil
}

func (lr *registry) names() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	names := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyLevels sets the level of every registered logger matching one of levels and remembers the
// configuration for loggers registered later. Later entries win over earlier ones.
func ApplyLevels(levels []LevelConfig) error {
	return globalRegistry.update(levels)
}

// LoggerNamed returns a registered logger.
func LoggerNamed(name string) (Logger, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	logger, ok := globalRegistry.loggers[name]
	return logger, ok
}

// RegisteredLoggerNames returns all registered logger names, sorted.
func RegisteredLoggerNames() []string {
	return globalRegistry.names()
}
