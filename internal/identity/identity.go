// Package identity derives the cache key of a requested function.
//
// Priority is fixed: an explicit id wins, then the (location, name) pair.
// Anything else is uncacheable. The description never takes part in a key,
// so editing it does not invalidate a cached function.
package identity

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Strategy selects the cache subtree a key lives in.
type Strategy int

const (
	StrategyNone      Strategy = iota // uncacheable, in-memory only
	StrategyID                        // ids/<id>
	StrategyStructure                 // structure/<location>/<name>
)

func (s Strategy) String() string {
	switch s {
	case StrategyID:
		return "id"
	case StrategyStructure:
		return "structure"
	default:
		return "none"
	}
}

// Key is the resolved identity of one generated function.
type Key struct {
	Strategy Strategy
	// Value is the id, or "<location>/<name>" for structure keys.
	Value string
}

// Cacheable reports whether the key names a persistent slot.
func (k Key) Cacheable() bool {
	return k.Strategy != StrategyNone
}

// String renders the key as its slot path, e.g. "ids/abc" or
// "structure/cmd/app/main.go/add".
func (k Key) String() string {
	switch k.Strategy {
	case StrategyID:
		return "ids/" + k.Value
	case StrategyStructure:
		return "structure/" + k.Value
	default:
		return "<uncached>"
	}
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid identity")

// Resolve derives the key for an explicit id or a (location, name) pair.
// location is a slash-separated path relative to the workspace root.
func Resolve(id, location, name string) (Key, error) {
	if id != "" {
		if err := validateID(id); err != nil {
			return Key{}, err
		}
		return Key{Strategy: StrategyID, Value: id}, nil
	}

	if location != "" && name != "" {
		loc, err := cleanLocation(location)
		if err != nil {
			return Key{}, err
		}
		if err := validateName(name); err != nil {
			return Key{}, err
		}
		return Key{Strategy: StrategyStructure, Value: loc + "/" + name}, nil
	}

	return Key{Strategy: StrategyNone}, nil
}

// Location turns a caller's source file into a workspace-relative location.
// Files outside root keep their absolute path minus volume and leading slash.
func Location(root, file string) string {
	if file == "" {
		return ""
	}
	if absRoot, err := filepath.Abs(root); err == nil {
		if absFile, err := filepath.Abs(file); err == nil {
			if rel, err := filepath.Rel(absRoot, absFile); err == nil && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
			file = absFile
		}
	}
	file = strings.TrimPrefix(file, filepath.VolumeName(file))
	return strings.TrimLeft(filepath.ToSlash(file), "/")
}

func validateID(id string) error {
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: id %q must not contain path separators", ErrInvalid, id)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: id contains NUL", ErrInvalid)
	}
	return nil
}

func validateName(name string) error {
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: name %q must not contain path separators", ErrInvalid, name)
	}
	return nil
}

func cleanLocation(location string) (string, error) {
	loc := path.Clean(filepath.ToSlash(location))
	if path.IsAbs(loc) || loc == ".." || strings.HasPrefix(loc, "../") || loc == "." {
		return "", fmt.Errorf("%w: location %q must be relative to the workspace", ErrInvalid, location)
	}
	return loc, nil
}
