// Package featureflags evaluates runtime feature toggles.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Known flags.
const (
	// AIScoring routes feedback scoring through the inference service.
	AIScoring = "ai_scoring"
	// Translation enables the translate endpoint.
	Translation = "translation"
)

// Defaults applied when FEATURE_FLAGS leaves a known flag unset.
var Defaults = map[string]string{
	AIScoring:   "on",
	Translation: "on",
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "ai_scoring=25%,translation=off"
type Manager struct {
	mu    sync.RWMutex
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config
// string, filling unset known flags from Defaults.
func NewManager(raw string) *Manager {
	out := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		out[k] = v
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := parsePair(pair)
		if !ok {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

func parsePair(pair string) (string, string, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
	if !found {
		return "", "", false
	}
	key = normalize(key)
	value = normalize(value)
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

// Set overrides a flag at runtime.
func (m *Manager) Set(name, value string) {
	key, val, ok := parsePair(name + "=" + value)
	if !ok {
		return
	}
	m.mu.Lock()
	m.flags[key] = val
	m.mu.Unlock()
}

// Enabled returns whether a flag is enabled for a given user.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic user rollout, e.g. 25%)
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	m.mu.RLock()
	value, ok := m.flags[normalize(name)]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if userID == 0 {
		return false
	}
	return rolloutBucket(name, userID) < pct
}

// Names returns the configured flag names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.flags))
	for k := range m.flags {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	names := m.Names()
	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
