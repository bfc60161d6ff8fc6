package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LocalProviderName is the name of the offline tier that terminates every
// chain. It is added automatically and must not be configured.
const LocalProviderName = "local"

// ValidProviderNames lists known provider names per capability.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":         {"deepgram", "whisper", "openai"},
	"translation": {"openai", "anthropic", "gemini", "ollama", "mistral", "deepseek", "groq", "llamacpp", "llamafile"},
	"tts":         {"elevenlabs", "coqui", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown fields are rejected. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes %d must not be negative", cfg.Server.MaxMessageBytes))
	}
	if cfg.Server.SendQueueSize < 0 {
		errs = append(errs, fmt.Errorf("server.send_queue_size %d must not be negative", cfg.Server.SendQueueSize))
	}

	// Durations
	for name, d := range map[string]int64{
		"server.write_timeout":         int64(cfg.Server.WriteTimeout),
		"classroom.code_ttl":           int64(cfg.Classroom.CodeTTL),
		"classroom.sweep_interval":     int64(cfg.Classroom.SweepInterval),
		"session.grace_period":         int64(cfg.Session.GracePeriod),
		"session.inactivity_threshold": int64(cfg.Session.InactivityThreshold),
		"session.min_real_duration":    int64(cfg.Session.MinRealDuration),
		"session.cleanup_interval":     int64(cfg.Session.CleanupInterval),
		"heartbeat.interval":           int64(cfg.Heartbeat.Interval),
		"heartbeat.ping_timeout":       int64(cfg.Heartbeat.PingTimeout),
		"resilience.base_cooldown":     int64(cfg.Resilience.BaseCooldown),
		"resilience.max_cooldown":      int64(cfg.Resilience.MaxCooldown),
		"resilience.call_timeout":      int64(cfg.Resilience.CallTimeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if cfg.Resilience.MaxCooldown > 0 && cfg.Resilience.MaxCooldown < cfg.Resilience.BaseCooldown {
		errs = append(errs, fmt.Errorf("resilience.max_cooldown %s is shorter than base_cooldown %s",
			cfg.Resilience.MaxCooldown, cfg.Resilience.BaseCooldown))
	}
	if cfg.Heartbeat.Interval > 0 && cfg.Heartbeat.PingTimeout > cfg.Heartbeat.Interval {
		errs = append(errs, fmt.Errorf("heartbeat.ping_timeout %s exceeds heartbeat.interval %s",
			cfg.Heartbeat.PingTimeout, cfg.Heartbeat.Interval))
	}

	// Provider tiers
	errs = append(errs, validateTiers("stt", cfg.Providers.STT)...)
	errs = append(errs, validateTiers("translation", cfg.Providers.Translation)...)
	errs = append(errs, validateTiers("tts", cfg.Providers.TTS)...)

	if len(cfg.Providers.Translation) == 0 {
		slog.Warn("no translation tiers configured; students will receive the untranslated text")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; session records will not survive a restart")
	}

	return errors.Join(errs...)
}

// validateTiers checks one capability's tier list.
func validateTiers(kind string, tiers []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(tiers))
	for i, t := range tiers {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		case t.Name == LocalProviderName:
			errs = append(errs, fmt.Errorf("%s: the %q tier is added automatically and must not be configured", prefix, LocalProviderName))
			continue
		}
		key := tierKey(t)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates providers.%s[%d]", prefix, kind, prev))
		}
		seen[key] = i
		validateProviderName(kind, t.Name)
	}
	return errs
}

// tierKey identifies a tier for duplicate detection. The same vendor may
// appear twice with different models.
func tierKey(t ProviderEntry) string {
	return t.Name + "/" + t.Model + "/" + t.BaseURL
}

// TierName returns the display name of a tier in logs, metrics and
// readiness output: "openai" or "openai:gpt-4o-mini".
func TierName(t ProviderEntry) string {
	if t.Model == "" {
		return t.Name
	}
	return t.Name + ":" + t.Model
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
