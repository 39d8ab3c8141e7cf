package css

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// DependencyKind tells what kind of reference produced a dependency.
type DependencyKind int

const (
	DependencyImport DependencyKind = iota // @import rule
	DependencyURL                          // url() or image-set() string
)

func (k DependencyKind) String() string {
	switch k {
	case DependencyImport:
		return "import"
	case DependencyURL:
		return "url"
	}
	return fmt.Sprintf("DependencyKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k DependencyKind) MarshalText() ([]byte, error) {
	switch k {
	case DependencyImport, DependencyURL:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown dependency kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *DependencyKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "import":
		*k = DependencyImport
	case "url":
		*k = DependencyURL
	default:
		return fmt.Errorf("unknown dependency kind %q", string(text))
	}
	return nil
}

// Dependency is a reference to an external resource found while serializing
// a stylesheet.
type Dependency struct {
	Kind        DependencyKind `json:"kind" yaml:"kind"`
	URL         string         `json:"url" yaml:"url"`
	Placeholder string         `json:"placeholder" yaml:"placeholder"`
	// import conditions, empty for url dependencies
	Layer    string   `json:"layer,omitempty" yaml:"layer,omitempty"`
	Supports string   `json:"supports,omitempty" yaml:"supports,omitempty"`
	Media    string   `json:"media,omitempty" yaml:"media,omitempty"`
	Loc      Location `json:"loc" yaml:"loc"`
}

// DependencyOptions turns on dependency analysis during serialization.
type DependencyOptions struct {
	// RemoveImports drops @import rules from serialized output. They are
	// reported either way.
	RemoveImports bool
}

// Placeholder returns the string written in place of url in serialized
// output. It is stable for the same filename and url.
func Placeholder(filename, url string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(filename+"_"+url))
	return hex.EncodeToString(id[:6])
}
