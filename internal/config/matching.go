package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MatchingRules tunes identity resolution and usage filtering without a redeploy.
type MatchingRules struct {
	WalletPrefixes       []string `mapstructure:"walletPrefixes"`
	UsageMetricSubstring string   `mapstructure:"usageMetricSubstring"`
}

func DefaultMatchingRules() MatchingRules {
	return MatchingRules{
		WalletPrefixes:       []string{"0x"},
		UsageMetricSubstring: "query",
	}
}

type MatchingRulesHolder struct {
	current atomic.Value // holds MatchingRules
}

// NewStaticMatchingRulesHolder returns a holder that never reloads.
func NewStaticMatchingRulesHolder(rules MatchingRules) *MatchingRulesHolder {
	holder := &MatchingRulesHolder{}
	holder.current.Store(normalizeMatchingRules(rules))
	return holder
}

// NewMatchingRulesHolder reads matching.yml from the usual config paths and
// keeps it fresh on file changes. A missing file falls back to defaults.
func NewMatchingRulesHolder(log *zap.Logger) (*MatchingRulesHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.matching")

	v := viper.New()
	v.SetConfigName("matching")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/crmsync/config")
	v.AddConfigPath("/etc/crmsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CRMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMatchingRules()
	v.SetDefault("matching.walletPrefixes", defaults.WalletPrefixes)
	v.SetDefault("matching.usageMetricSubstring", defaults.UsageMetricSubstring)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var rules MatchingRules
	if err := v.UnmarshalKey("matching", &rules); err != nil {
		return nil, err
	}
	rules = normalizeMatchingRules(rules)
	if err := validateMatchingRules(rules); err != nil {
		return nil, err
	}

	holder := &MatchingRulesHolder{}
	holder.current.Store(rules)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated MatchingRules
			if err := v.UnmarshalKey("matching", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			updated = normalizeMatchingRules(updated)
			if err := validateMatchingRules(updated); err != nil {
				log.Warn("invalid config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *MatchingRulesHolder) Get() MatchingRules {
	if h == nil {
		return DefaultMatchingRules()
	}
	rules, ok := h.current.Load().(MatchingRules)
	if !ok {
		return DefaultMatchingRules()
	}
	return rules
}

// LooksLikeWallet reports whether value starts with one of the configured
// wallet prefixes, ignoring case.
func (r MatchingRules) LooksLikeWallet(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, prefix := range r.WalletPrefixes {
		if prefix != "" && strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func normalizeMatchingRules(rules MatchingRules) MatchingRules {
	prefixes := make([]string, 0, len(rules.WalletPrefixes))
	for _, p := range rules.WalletPrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		prefixes = append(prefixes, p)
	}
	rules.WalletPrefixes = prefixes
	rules.UsageMetricSubstring = strings.ToLower(strings.TrimSpace(rules.UsageMetricSubstring))
	return rules
}

func validateMatchingRules(rules MatchingRules) error {
	if len(rules.WalletPrefixes) == 0 {
		return errors.New("matching.walletPrefixes cannot be empty")
	}
	if rules.UsageMetricSubstring == "" {
		return errors.New("matching.usageMetricSubstring cannot be empty")
	}
	return nil
}
