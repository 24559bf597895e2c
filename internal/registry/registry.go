// Package registry loads the static token to venue mapping used to decide
// where a detected basis deviation can be traded against.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnknownVenueType is wrapped by ConfigError when a descriptor carries a
// type tag outside the closed VenueType set.
var ErrUnknownVenueType = errors.New("unknown venue type")

// VenueType is the closed set of venue kinds.
type VenueType int

const (
	VenueContract VenueType = iota + 1
	VenueLending
)

// ParseVenueType resolves a registry type tag. The Chinese tags are what the
// original platforms.json files carry.
func ParseVenueType(tag string) (VenueType, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "contract", "合约":
		return VenueContract, nil
	case "lending", "借贷":
		return VenueLending, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVenueType, tag)
	}
}

func (t VenueType) String() string {
	switch t {
	case VenueContract:
		return "contract"
	case VenueLending:
		return "lending"
	default:
		return "unknown"
	}
}

// Label is the operator-facing name used in console tables.
func (t VenueType) Label() string {
	switch t {
	case VenueContract:
		return "合约"
	case VenueLending:
		return "借贷"
	default:
		return "?"
	}
}

// Descriptor is one record of the registry file.
type Descriptor struct {
	Platform string   `json:"platform" toml:"platform"`
	Type     string   `json:"type" toml:"type"`
	Pairs    []string `json:"pairs" toml:"pairs"`
}

// Venue is one (platform, type) pair offering a token.
type Venue struct {
	Platform string
	Type     VenueType
}

// Index maps an upper-cased base token to the venues offering it, in file order.
type Index map[string][]Venue

// Lookup returns the venues for token, normalising case.
func (idx Index) Lookup(token string) []Venue {
	return idx[NormalizeToken(token)]
}

// Tokens returns the indexed tokens sorted alphabetically.
func (idx Index) Tokens() []string {
	tokens := make([]string, 0, len(idx))
	for token := range idx {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// NormalizeToken is the single case rule shared by registry and snapshot lookups.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// ConfigError reports an unreadable or malformed registry. Callers log it and
// carry on with an empty index.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("venue registry: %v", e.Err)
	}
	return fmt.Sprintf("venue registry %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a JSON or TOML registry file. On any failure it returns an empty
// index together with a *ConfigError.
func Load(path string) (Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Index{}, &ConfigError{Path: path, Err: err}
	}

	descriptors, err := decode(path, raw)
	if err != nil {
		return Index{}, &ConfigError{Path: path, Err: err}
	}

	idx, err := Build(descriptors)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return Index{}, err
	}
	return idx, nil
}

func decode(path string, raw []byte) ([]Descriptor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var doc struct {
			Platforms []Descriptor `toml:"platforms"`
		}
		if _, err := toml.Decode(string(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		return doc.Platforms, nil
	default:
		var descriptors []Descriptor
		if err := json.Unmarshal(raw, &descriptors); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return descriptors, nil
	}
}

// Build indexes descriptors. A descriptor without a platform name or with an
// unknown type rejects the whole registry.
func Build(descriptors []Descriptor) (Index, error) {
	idx := make(Index)
	for i, d := range descriptors {
		platform := strings.TrimSpace(d.Platform)
		if platform == "" {
			return Index{}, &ConfigError{Err: fmt.Errorf("entry %d: platform name is empty", i)}
		}
		kind, err := ParseVenueType(d.Type)
		if err != nil {
			return Index{}, &ConfigError{Err: fmt.Errorf("entry %d (%s): %w", i, platform, err)}
		}
		for _, pair := range d.Pairs {
			token := NormalizeToken(pair)
			if token == "" {
				continue
			}
			idx[token] = append(idx[token], Venue{Platform: platform, Type: kind})
		}
	}
	return idx, nil
}
