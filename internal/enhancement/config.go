package enhancement

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultJoin is used when a configuration omits assembly.join.
const DefaultJoin = ", "

var (
	// ErrConfiguration marks a missing or malformed enhancement configuration.
	ErrConfiguration = errors.New("enhancement configuration invalid")
	// ErrUnrecognizedOption marks a selection that names an option absent from enums.
	ErrUnrecognizedOption = errors.New("unrecognized option")
)

// ConfigurationError carries the path of a configuration that could not be used.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("enhancement config: %v", e.Err)
	}
	return fmt.Sprintf("enhancement config %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// Config is the declarative prompt-template table. It is treated as
// immutable once loaded; callers go through Snapshot for reads.
type Config struct {
	Version     string `json:"version,omitempty"`
	Kit         string `json:"kit,omitempty"`
	Description string `json:"description,omitempty"`

	Enums     map[string][]string            `json:"enums"`
	Rules     map[string]map[string][]string `json:"rules"`
	Negatives map[string]map[string][]string `json:"negatives,omitempty"`
	Defaults  Defaults                       `json:"defaults"`
	Assembly  Assembly                       `json:"assembly"`

	EnforcedNegatives               []string `json:"enforced_negatives"`
	EnforcedNegativesNSFW           []string `json:"enforced_negatives_nsfw,omitempty"`
	EnforcedNegativesAge            []string `json:"enforced_negatives_age,omitempty"`
	EnforcedNegativesHumanIntegrity []string `json:"enforced_negatives_human_integrity,omitempty"`

	EnhancementText     string `json:"enhancement_text,omitempty"`
	EditEnhancementText string `json:"edit_enhancement_text,omitempty"`
}

type Defaults struct {
	Selection map[string]string  `json:"selection"`
	Weights   map[string]float64 `json:"weights"`
	Intensity *float64           `json:"intensity,omitempty"`
	Params    map[string]any     `json:"params,omitempty"`
}

type Assembly struct {
	Order []string `json:"order"`
	Join  string   `json:"join"`
}

// LoadFile reads and parses the configuration at path. Failures are
// returned as *ConfigurationError.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(cfg.Enums) == 0 && len(cfg.Assembly.Order) == 0 && strings.TrimSpace(cfg.EnhancementText) == "" {
		return nil, errors.New("no enums, assembly order or enhancement text")
	}
	cfg.normalize()
	return &cfg, nil
}

// Load returns the configuration at path, or the built-in fallback when the
// file cannot be used. The failure is logged, never returned.
func Load(path string, logger *zap.Logger) *Config {
	cfg, err := LoadFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("enhancement config unavailable, using built-in fallback",
				zap.String("path", path), zap.Error(err))
		}
		return Fallback()
	}
	if logger != nil {
		for _, problem := range cfg.Validate() {
			logger.Warn("enhancement config problem", zap.String("path", path), zap.String("problem", problem))
		}
	}
	return cfg
}

// Fallback is the minimal configuration used when no file is available.
func Fallback() *Config {
	cfg := &Config{
		Version:     "1.0",
		Kit:         "fallback",
		Description: "built-in fallback",
		Enums: map[string][]string{
			"quality": {"high quality", "professional"},
		},
		Rules: map[string]map[string][]string{
			"quality": {
				"high quality": {"sharp", "crisp"},
				"professional": {"professional style", "detailed artwork"},
			},
		},
		Defaults: Defaults{
			Selection: map[string]string{"quality": "high quality"},
			Weights:   map[string]float64{},
		},
		Assembly:            Assembly{Order: []string{"quality"}, Join: DefaultJoin},
		EnforcedNegatives:   []string{"blurry", "low quality", "distorted", "amateur"},
		EnhancementText:     "high quality, professional style, detailed artwork",
		EditEnhancementText: "Make only the minimal requested change. Do not alter background, lighting, colors, textures, or any other elements",
	}
	cfg.normalize()
	return cfg
}

// Validate reports non-fatal inconsistencies. Generation still proceeds and
// skips the affected categories.
func (c *Config) Validate() []string {
	var problems []string
	for _, category := range c.Assembly.Order {
		if _, ok := c.Enums[category]; !ok {
			problems = append(problems, fmt.Sprintf("assembly category %q missing from enums", category))
		}
	}
	for _, category := range sortedKeys(c.Defaults.Selection) {
		option := c.Defaults.Selection[category]
		options, ok := c.Enums[category]
		if !ok {
			problems = append(problems, fmt.Sprintf("default for unknown category %q", category))
			continue
		}
		if _, ok := matchOption(options, option); !ok {
			problems = append(problems, fmt.Sprintf("default %q not in enums[%s]", option, category))
		}
	}
	for _, category := range sortedKeys(c.Rules) {
		options, ok := c.Enums[category]
		if !ok {
			problems = append(problems, fmt.Sprintf("rules for unknown category %q", category))
			continue
		}
		for _, option := range sortedKeys(c.Rules[category]) {
			if _, ok := matchOption(options, option); !ok {
				problems = append(problems, fmt.Sprintf("rule option %q not in enums[%s]", option, category))
			}
		}
	}
	return problems
}

func (c *Config) normalize() {
	if c.Assembly.Join == "" {
		c.Assembly.Join = DefaultJoin
	}
	if c.Enums == nil {
		c.Enums = map[string][]string{}
	}
	if c.Rules == nil {
		c.Rules = map[string]map[string][]string{}
	}
	if c.Defaults.Selection == nil {
		c.Defaults.Selection = map[string]string{}
	}
	if c.Defaults.Weights == nil {
		c.Defaults.Weights = map[string]float64{}
	}
}

func (c *Config) clone() *Config {
	// deep copy; nested maps must not be shared with callers
	data, err := json.Marshal(c)
	if err != nil {
		return c
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return c
	}
	out.normalize()
	return &out
}

func matchOption(options []string, want string) (string, bool) {
	want = strings.TrimSpace(want)
	if want == "" {
		return "", false
	}
	for _, option := range options {
		if option == want {
			return option, true
		}
	}
	for _, option := range options {
		if strings.EqualFold(option, want) {
			return option, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
