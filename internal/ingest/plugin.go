// Package ingest provides the pluggable ingestion framework: plugins convert
// one external source (a file, a crawled site, a video transcript) into a
// normalized stream of text units, which the chunker then splits for
// embedding. Plugins declare a typed parameter schema that is validated
// centrally, so individual plugins never see unvalidated input.
package ingest

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// ParamType enumerates the allowed parameter value types.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamEnum    ParamType = "enum"
)

// ParamSpec declares one plugin parameter. The surrounding UI renders
// dynamic forms from these specs; this core only exposes them.
type ParamSpec struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Default     any       `json:"default,omitempty"`
	Required    bool      `json:"required"`
	Enum        []string  `json:"enum,omitempty"`
}

// Schema maps parameter name to its spec.
type Schema map[string]ParamSpec

// Params holds validated, normalized parameter values. Integer values are
// normalized to int, numbers to float64, arrays to []string.
type Params map[string]any

func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p Params) Int(key string) int {
	v, _ := p[key].(int)
	return v
}

func (p Params) Float(key string) float64 {
	v, _ := p[key].(float64)
	return v
}

func (p Params) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Params) Strings(key string) []string {
	v, _ := p[key].([]string)
	return v
}

// SourceMeta identifies where a text unit came from. Path is the raw
// server-side location and never leaves the trusted boundary.
type SourceMeta struct {
	Filename       string
	URL            string
	Path           string
	TimestampRange string
}

// TextUnit is one normalized unit of extracted text with its source
// metadata. Plugins yield units in document order.
type TextUnit struct {
	Text   string
	Source SourceMeta
}

// Source is the input handed to a plugin. File-based plugins read from
// Reader; network plugins resolve URL.
type Source struct {
	Filename    string
	ContentType string
	Reader      io.Reader
	URL         string
}

// Plugin converts one external source into text units. Implementations must
// be stateless and safe for concurrent use; all per-call state lives in the
// arguments.
type Plugin interface {
	Name() string
	Description() string
	Schema() Schema
	Ingest(ctx context.Context, src Source, params Params) ([]TextUnit, error)
}

// PluginInfo is the discovery record returned to the surrounding UI.
type PluginInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"parameter_schema"`
}

// Registry holds the available plugins. It is constructed once at process
// start and passed explicitly to the ingestion service; there is no global
// plugin state.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry creates a Registry with the given plugins.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Name()] = p
	}
	return r
}

// Get returns the named plugin or ErrUnknownPlugin.
func (r *Registry) Get(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound,
			fmt.Sprintf("ingestion plugin %q not registered", name), domain.ErrUnknownPlugin)
	}
	return p, nil
}

// Discover returns all registered plugins with their schemas, sorted by name
// for a stable listing.
func (r *Registry) Discover() []PluginInfo {
	infos := make([]PluginInfo, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, PluginInfo{
			Name:        p.Name(),
			Description: p.Description(),
			Schema:      p.Schema(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
