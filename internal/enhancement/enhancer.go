package enhancement

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// NegativeSeparator joins negative prompt terms.
const NegativeSeparator = ", "

// Source of an effective option.
const (
	SourceExplicit = "explicit"
	SourceDefault  = "default"
)

// Skip reasons recorded in AppliedFragment.
const (
	ReasonNoSelection     = "no selection or default"
	ReasonUnknownCategory = "category missing from enums"
	ReasonUnrecognizedOpt = "unrecognized option"
	ReasonNoRule          = "no rule fragments"
	ReasonNotAssembled    = "category not in assembly order"
)

// Snapshot is one immutable view of a loaded configuration.
type Snapshot struct {
	cfg         *Config
	fingerprint string
	loadedAt    time.Time
	origin      string
}

// NewSnapshot freezes cfg. origin names where it was loaded from.
func NewSnapshot(cfg *Config, origin string) *Snapshot {
	if cfg == nil {
		cfg = Fallback()
		origin = "fallback"
	}
	frozen := cfg.clone()
	return &Snapshot{
		cfg:         frozen,
		fingerprint: fingerprint(frozen),
		loadedAt:    time.Now().UTC(),
		origin:      origin,
	}
}

// Config returns a copy of the snapshot configuration.
func (s *Snapshot) Config() *Config { return s.cfg.clone() }

// Fingerprint is a stable digest of the configuration content.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) Origin() string { return s.origin }

func (s *Snapshot) Version() string { return s.cfg.Version }

func fingerprint(cfg *Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// AppliedFragment records how one category was resolved.
type AppliedFragment struct {
	Category  string   `json:"category"`
	Option    string   `json:"option,omitempty"`
	Source    string   `json:"source,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
	Skipped   bool     `json:"skipped,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Result is the output of Generate.
type Result struct {
	EnhancedPrompt string            `json:"enhanced_prompt"`
	NegativePrompt string            `json:"negative_prompt"`
	Applied        []AppliedFragment `json:"applied_fragments"`
	Fingerprint    string            `json:"config_fingerprint"`
}

// Skipped returns the categories that were omitted from assembly.
func (r Result) Skipped() []AppliedFragment {
	var out []AppliedFragment
	for _, a := range r.Applied {
		if a.Skipped {
			out = append(out, a)
		}
	}
	return out
}

// Enhancer assembles prompts from a single snapshot. Every accessor on one
// Enhancer reads the same configuration.
type Enhancer struct {
	snap *Snapshot
}

func New(snap *Snapshot) *Enhancer {
	if snap == nil {
		snap = NewSnapshot(nil, "")
	}
	return &Enhancer{snap: snap}
}

func (e *Enhancer) Snapshot() *Snapshot { return e.snap }

// ListOptions returns the option labels per category.
func (e *Enhancer) ListOptions() map[string][]string {
	out := make(map[string][]string, len(e.snap.cfg.Enums))
	for category, options := range e.snap.cfg.Enums {
		out[category] = append([]string(nil), options...)
	}
	return out
}

// Defaults returns the default selection per category.
func (e *Enhancer) Defaults() map[string]string {
	out := make(map[string]string, len(e.snap.cfg.Defaults.Selection))
	for category, option := range e.snap.cfg.Defaults.Selection {
		out[category] = option
	}
	return out
}

// Weights returns the advisory category weights.
func (e *Enhancer) Weights() map[string]float64 {
	out := make(map[string]float64, len(e.snap.cfg.Defaults.Weights))
	for category, w := range e.snap.cfg.Defaults.Weights {
		out[category] = w
	}
	return out
}

// Params returns the suggested provider parameters.
func (e *Enhancer) Params() map[string]any {
	out := make(map[string]any, len(e.snap.cfg.Defaults.Params))
	for k, v := range e.snap.cfg.Defaults.Params {
		out[k] = v
	}
	return out
}

// Generate assembles the enhanced and negative prompts. It never fails:
// unknown categories and options are skipped and recorded in Applied.
func (e *Enhancer) Generate(userPrompt string, selections map[string]string) Result {
	cfg := e.snap.cfg
	requested := normalizeSelections(selections)

	var fragments []string
	applied := make([]AppliedFragment, 0, len(cfg.Assembly.Order))
	chosen := make(map[string]string, len(cfg.Assembly.Order))
	inOrder := make(map[string]struct{}, len(cfg.Assembly.Order))

	for _, category := range cfg.Assembly.Order {
		inOrder[category] = struct{}{}
		entry := AppliedFragment{Category: category}

		raw, explicit := requested[strings.ToLower(category)]
		if explicit {
			entry.Source = SourceExplicit
		} else {
			raw = cfg.Defaults.Selection[category]
			entry.Source = SourceDefault
		}
		entry.Option = raw

		switch options, ok := cfg.Enums[category]; {
		case strings.TrimSpace(raw) == "":
			entry.Skipped, entry.Reason = true, ReasonNoSelection
		case !ok:
			entry.Skipped, entry.Reason = true, ReasonUnknownCategory
		default:
			label, found := matchOption(options, raw)
			if !found {
				entry.Skipped, entry.Reason = true, ReasonUnrecognizedOpt
				break
			}
			entry.Option = label
			chosen[category] = label
			if explicit {
				// Picking the configured default is the same as omitting it.
				if def, ok := matchOption(options, cfg.Defaults.Selection[category]); ok && def == label {
					entry.Source = SourceDefault
				}
			}
			frags := cleanList(cfg.Rules[category][label])
			if len(frags) == 0 {
				entry.Skipped, entry.Reason = true, ReasonNoRule
				break
			}
			entry.Fragments = frags
			fragments = append(fragments, frags...)
		}
		applied = append(applied, entry)
	}

	for _, key := range sortedKeys(requested) {
		if _, ok := inOrderFold(inOrder, key); ok {
			continue
		}
		applied = append(applied, AppliedFragment{
			Category: key,
			Option:   requested[key],
			Source:   SourceExplicit,
			Skipped:  true,
			Reason:   ReasonNotAssembled,
		})
	}

	return Result{
		EnhancedPrompt: assemble(strings.TrimSpace(userPrompt), fragments, cfg.Assembly.Join),
		NegativePrompt: strings.Join(e.negatives(chosen), NegativeSeparator),
		Applied:        applied,
		Fingerprint:    e.snap.fingerprint,
	}
}

// negatives starts from the enforced list and adds the negatives of every
// option not chosen in a resolved category.
func (e *Enhancer) negatives(chosen map[string]string) []string {
	cfg := e.snap.cfg
	terms := append([]string(nil), cfg.EnforcedNegatives...)
	for _, category := range cfg.Assembly.Order {
		label, ok := chosen[category]
		if !ok {
			continue
		}
		byOption := cfg.Negatives[category]
		if len(byOption) == 0 {
			continue
		}
		for _, option := range cfg.Enums[category] {
			if option == label {
				continue
			}
			terms = append(terms, byOption[option]...)
		}
	}
	return Dedupe(terms)
}

// Dedupe trims terms, drops empties and removes case-insensitive duplicates,
// keeping the first spelling seen.
func Dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}

// SplitNegatives splits a comma separated negative prompt into terms.
func SplitNegatives(prompt string) []string {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	return Dedupe(strings.Split(prompt, ","))
}

func assemble(base string, fragments []string, join string) string {
	parts := make([]string, 0, len(fragments)+1)
	if base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, fragments...)
	return strings.Join(parts, join)
}

func normalizeSelections(selections map[string]string) map[string]string {
	out := make(map[string]string, len(selections))
	for k, v := range selections {
		key := strings.ToLower(strings.TrimSpace(k))
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func inOrderFold(order map[string]struct{}, key string) (string, bool) {
	for category := range order {
		if strings.EqualFold(category, key) {
			return category, true
		}
	}
	return "", false
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
