package config

import (
	"os"
	"strings"

	"PPSignal/tools/decode"
	"PPSignal/tools/errs"

	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides: PPSIGNAL_<SECTION>_<KEY>,
// e.g. PPSIGNAL_RELAY_HEARTBEAT_INTERVAL=15s or PPSIGNAL_REDIS_ADDR.
const EnvPrefix = "PPSIGNAL_"

// Load reads the YAML file at path (optional) over the defaults and then
// applies environment overrides.
func Load(path string) (*AppConfig, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		data = b
	}
	return Parse(data, os.Environ())
}

// Parse decodes data over Default() and applies the KEY=VALUE pairs in
// env that carry EnvPrefix.
func Parse(data []byte, env []string) (*AppConfig, error) {
	raw := map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errs.WrapMsg(err, "parse config yaml")
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	applyEnv(raw, env)

	cfg := Default()
	if err := decode.Into(raw, &cfg, decode.Options{TagName: "yaml", WeaklyTypedInput: true}); err != nil {
		return nil, errs.WrapMsg(err, "decode config")
	}
	cfg.Relay = cfg.Relay.Normalize()
	return &cfg, nil
}

func applyEnv(raw map[string]any, env []string) {
	for _, kv := range env {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(kv, EnvPrefix), "=")
		if !ok {
			continue
		}
		section, field, ok := strings.Cut(strings.ToLower(key), "_")
		if !ok || section == "" || field == "" {
			continue
		}
		sec, _ := raw[section].(map[string]any)
		if sec == nil {
			sec = map[string]any{}
			raw[section] = sec
		}
		sec[field] = val
	}
}

// Normalize replaces non-positive values with the defaults.
func (r RelayConfig) Normalize() RelayConfig {
	d := DefaultRelay()
	if r.HeartbeatInterval <= 0 {
		r.HeartbeatInterval = d.HeartbeatInterval
	}
	if r.InactivityTimeout <= 0 {
		r.InactivityTimeout = d.InactivityTimeout
	}
	if r.ConnectionTimeout <= 0 {
		r.ConnectionTimeout = d.ConnectionTimeout
	}
	if r.CleanupInterval <= 0 {
		r.CleanupInterval = d.CleanupInterval
	}
	if r.WriteTimeout <= 0 {
		r.WriteTimeout = d.WriteTimeout
	}
	if r.MaxMessageBytes <= 0 {
		r.MaxMessageBytes = d.MaxMessageBytes
	}
	if r.MaxParseErrors <= 0 {
		r.MaxParseErrors = d.MaxParseErrors
	}
	return r
}
