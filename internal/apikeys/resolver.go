package apikeys

import (
	"errors"
	"os"
	"strings"
)

// ErrMissingKey is returned when neither an org-specific nor the shared key is set.
var ErrMissingKey = errors.New("fal api key not configured")

const falKeyEnv = "FAL_API_KEY"

// Source describes where a key came from.
type Source string

const (
	SourceOrg    Source = "org"
	SourceShared Source = "shared"
)

// Resolver looks up per-organization provider keys from the environment.
type Resolver struct {
	lookup func(string) (string, bool)
}

// New reads keys from the process environment.
func New() *Resolver {
	return &Resolver{lookup: os.LookupEnv}
}

// NewWithLookup reads keys through lookup, for tests and static maps.
func NewWithLookup(lookup func(string) (string, bool)) *Resolver {
	return &Resolver{lookup: lookup}
}

// FalKey returns FAL_API_KEY_{ORG} when set, else FAL_API_KEY.
func (r *Resolver) FalKey(orgType string) (string, Source, error) {
	if org := EnvSuffix(orgType); org != "" {
		if key, ok := r.value(falKeyEnv + "_" + org); ok {
			return key, SourceOrg, nil
		}
	}
	if key, ok := r.value(falKeyEnv); ok {
		return key, SourceShared, nil
	}
	return "", "", ErrMissingKey
}

// EnvName reports the variable FalKey would read first for orgType.
func EnvName(orgType string) string {
	if org := EnvSuffix(orgType); org != "" {
		return falKeyEnv + "_" + org
	}
	return falKeyEnv
}

func (r *Resolver) value(name string) (string, bool) {
	v, ok := r.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// EnvSuffix upper-cases orgType and replaces anything outside [A-Z0-9] with '_'.
func EnvSuffix(orgType string) string {
	orgType = strings.TrimSpace(orgType)
	var b strings.Builder
	for _, r := range strings.ToUpper(orgType) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
