// Package rules loads batch configuration files and resolves their
// device matchers against enumerated camera descriptors. A config is a
// list of rules; each rule pairs optional matcher fields with an
// ordered set of control writes.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/kevmo314/go-uvcctl"
	"github.com/kevmo314/go-uvcctl/pkg/controls"
)

// Rule is one entry of the config's cameras list. Every matcher field
// that is present must match for the rule to select a descriptor.
// Settings preserves the document's key order; writes are applied in
// that order because some controls gate others (auto flags before
// manual values).
type Rule struct {
	Index        *int          `yaml:"index"`
	Name         string        `yaml:"name"`
	NameContains string        `yaml:"name_contains"`
	Bus          *int          `yaml:"bus"`
	Addr         *int          `yaml:"addr"`
	VID          *uint16       `yaml:"vid"`
	PID          *uint16       `yaml:"pid"`
	Settings     yaml.MapSlice `yaml:"settings"`
}

// Config is the root document.
type Config struct {
	Cameras []Rule `yaml:"cameras"`
}

// Load reads and validates a config file. YAML and JSON are both
// accepted, JSON being a YAML subset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalWithOptions(raw, &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Cameras) == 0 {
		return nil, errors.New("config must include a non-empty cameras list")
	}
	for i, rule := range cfg.Cameras {
		if len(rule.Settings) == 0 {
			return nil, fmt.Errorf("cameras[%d]: missing or empty settings", i)
		}
		if !rule.hasMatcher() {
			return nil, fmt.Errorf("cameras[%d]: at least one matcher field is required", i)
		}
		for _, item := range rule.Settings {
			id, ok := item.Key.(string)
			if !ok {
				return nil, fmt.Errorf("cameras[%d]: setting keys must be control identifiers", i)
			}
			if _, ok := controls.Lookup(id); !ok {
				return nil, fmt.Errorf("cameras[%d]: unknown control %q", i, id)
			}
		}
	}
	return &cfg, nil
}

func (r *Rule) hasMatcher() bool {
	return r.Index != nil || r.Name != "" || r.NameContains != "" ||
		r.Bus != nil || r.Addr != nil || r.VID != nil || r.PID != nil
}

// Matches reports whether the rule selects the descriptor at the given
// enumeration index. Name matchers are case-insensitive.
func (r *Rule) Matches(desc *uvcctl.Descriptor, index int) bool {
	if r.Index != nil && *r.Index != index {
		return false
	}
	if r.Bus != nil && *r.Bus != desc.BusNumber {
		return false
	}
	if r.Addr != nil && *r.Addr != desc.DeviceAddress {
		return false
	}
	if r.VID != nil && *r.VID != desc.VendorID {
		return false
	}
	if r.PID != nil && *r.PID != desc.ProductID {
		return false
	}
	name := strings.ToLower(desc.DisplayName())
	if r.Name != "" && name != strings.ToLower(r.Name) {
		return false
	}
	if r.NameContains != "" && !strings.Contains(name, strings.ToLower(r.NameContains)) {
		return false
	}
	return true
}

// CoerceValue converts a raw config value into a typed control value
// for the given control. Enums accept either a numeric device code or
// one of the control's labels; pairs accept a two-element sequence.
func CoerceValue(spec controls.Spec, raw interface{}) (controls.Value, error) {
	switch spec.Kind {
	case controls.KindBool:
		switch v := raw.(type) {
		case bool:
			return controls.Bool(v), nil
		default:
			n, err := coerceInt(raw)
			if err != nil {
				return controls.Value{}, fmt.Errorf("%s: %w", spec.ID, err)
			}
			return controls.Bool(n != 0), nil
		}
	case controls.KindEnum:
		if label, ok := raw.(string); ok {
			code, ok := spec.CodeFor(label)
			if !ok {
				return controls.Value{}, fmt.Errorf("%s: invalid enum label %q", spec.ID, label)
			}
			return controls.Enum(code), nil
		}
		n, err := coerceInt(raw)
		if err != nil {
			return controls.Value{}, fmt.Errorf("%s: %w", spec.ID, err)
		}
		return controls.Enum(n), nil
	case controls.KindPair:
		seq, ok := raw.([]interface{})
		if !ok || len(seq) != 2 {
			return controls.Value{}, fmt.Errorf("%s: expected a two-element list", spec.ID)
		}
		first, err := coerceInt(seq[0])
		if err != nil {
			return controls.Value{}, fmt.Errorf("%s: %w", spec.ID, err)
		}
		second, err := coerceInt(seq[1])
		if err != nil {
			return controls.Value{}, fmt.Errorf("%s: %w", spec.ID, err)
		}
		return controls.Pair(first, second), nil
	default:
		n, err := coerceInt(raw)
		if err != nil {
			return controls.Value{}, fmt.Errorf("%s: %w", spec.ID, err)
		}
		return controls.Int(n), nil
	}
}

func coerceInt(raw interface{}) (int32, error) {
	switch v := raw.(type) {
	case int:
		return int32(v), nil
	case int64:
		return int32(v), nil
	case uint64:
		return int32(v), nil
	case float64:
		n := int32(v)
		if float64(n) != v {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not an integer", raw, raw)
	}
}
