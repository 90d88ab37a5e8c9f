// Package source discovers and decodes JSON rule sources.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/ryanuber/go-glob"
)

// Keys are matched exactly: "DOMAIN" is not "domain".
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// StringList is a JSON value given either as a single string or as an
// array of strings. null decodes to an empty list.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	list := make(StringList, 0, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return fmt.Errorf("element %d: expected string, got %T", i, item)
		}
		list = append(list, str)
	}
	*l = list
	return nil
}

// DomainRule is one entry of a domain source.
type DomainRule struct {
	DomainSuffix StringList `json:"domain_suffix"`
	Domain       StringList `json:"domain"`
}

// DomainSource is a decoded domain rule source.
type DomainSource struct {
	Rules []DomainRule `json:"rules"`
}

// ClassicalRule is one entry of a classical source. Every field is optional.
type ClassicalRule struct {
	DomainSuffix       StringList `json:"domain_suffix"`
	Domain             StringList `json:"domain"`
	DomainKeyword      StringList `json:"domain_keyword"`
	DomainRegex        StringList `json:"domain_regex"`
	DomainKeywordRegex StringList `json:"domain_keyword_regex"`
	IPCIDR             StringList `json:"ip_cidr"`
	IPCIDR6            StringList `json:"ip_cidr6"`
	ProcessName        StringList `json:"process_name"`
	ProcessNameRegex   StringList `json:"process_name_regex"`
	Payload            StringList `json:"payload"`
	GeoIP              StringList `json:"geoip"`
}

// ClassicalSource is a decoded classical rule source.
type ClassicalSource struct {
	Rules []ClassicalRule `json:"rules"`
}

// ParseError reports a source file that could not be read or decoded.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadDomain reads and decodes a domain source file.
func LoadDomain(path string) (*DomainSource, error) {
	var src DomainSource
	if err := load(path, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// LoadClassical reads and decodes a classical source file.
func LoadClassical(path string) (*ClassicalSource, error) {
	var src ClassicalSource
	if err := load(path, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

func load(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ParseError{File: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{File: path, Err: err}
	}
	return nil
}

// Name returns the base name of a source file without its extension.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discover returns the *.json files of dir sorted by file name. When
// include is non-empty only sources whose name matches one of the glob
// patterns are returned. A missing directory yields no sources.
func Discover(dir string, include []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("*.json", entry.Name()); !ok {
			continue
		}
		if len(include) > 0 && !matchesAny(Name(entry.Name()), include) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if glob.Glob(pattern, name) {
			return true
		}
	}
	return false
}
