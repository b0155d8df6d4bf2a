// Copyright (c) 2025 Berik Ashimov

// Package design reads a network design (routers, LANs, point-to-point links
// and switch uplinks), validates it and builds the address and route plan.
package design

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"routeplan/internal/addrspace"
)

const (
	MinVLAN = 2
	MaxVLAN = 4094

	DefaultLinkPrefix   = 30
	DefaultUplinkPrefix = 30
	DefaultLANPrefix    = 24
	DefaultName         = "routeplan"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var ErrUnsupportedFormat = errors.New("design: unsupported format")

// Design is the input document.
type Design struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Base    string   `json:"base" yaml:"base"`
	Routers int      `json:"routers" yaml:"routers"`
	LANs    []LAN    `json:"lans,omitempty" yaml:"lans,omitempty"`
	Links   []Link   `json:"links,omitempty" yaml:"links,omitempty"`
	Uplinks []Uplink `json:"uplinks,omitempty" yaml:"uplinks,omitempty"`
}

// LAN is a VLAN network behind a router. Either Prefix or Hosts sizes it;
// Prefix wins when both are set.
type LAN struct {
	Router int    `json:"router" yaml:"router"`
	VLAN   int    `json:"vlan" yaml:"vlan"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Prefix int    `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Hosts  int    `json:"hosts,omitempty" yaml:"hosts,omitempty"`
}

// Link is a point-to-point connection between two routers.
type Link struct {
	A      int `json:"a" yaml:"a"`
	B      int `json:"b" yaml:"b"`
	Prefix int `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Uplink is the transit network between a router and its layer-3 switch.
// The switch then serves the router's LANs.
type Uplink struct {
	Router int `json:"router" yaml:"router"`
	Prefix int `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Parse decodes raw in the given format. An empty format is detected from
// the first non-blank byte.
func Parse(raw []byte, format string) (*Design, error) {
	if format == "" {
		format = DetectFormat(raw)
	}
	var d Design
	switch strings.ToLower(format) {
	case FormatJSON:
		if err := decodeJSON(raw, &d); err != nil {
			return nil, errors.Wrap(err, "parse json")
		}
	case FormatYAML, "yml":
		if err := decodeYAML(raw, &d); err != nil {
			return nil, errors.Wrap(err, "parse yaml")
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}
	d.applyDefaults()
	return &d, nil
}

// Load reads a design file, picking the format from its extension.
func Load(path string) (*Design, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read design %s", path)
	}
	format := ""
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	}
	d, err := Parse(raw, format)
	if err != nil {
		return nil, errors.Wrapf(err, "design %s", path)
	}
	return d, nil
}

func DetectFormat(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

func decodeJSON(raw []byte, d *Design) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(d)
}

// decodeYAML goes through JSON so both formats share the strict field check.
func decodeYAML(raw []byte, d *Design) error {
	var anyData any
	if err := yaml.Unmarshal(raw, &anyData); err != nil {
		return err
	}
	asJSON, err := json.Marshal(anyData)
	if err != nil {
		return err
	}
	return decodeJSON(asJSON, d)
}

func (d *Design) applyDefaults() {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = DefaultName
	}
	d.Base = strings.TrimSpace(d.Base)
	for i := range d.LANs {
		l := &d.LANs[i]
		if l.Prefix == 0 {
			if l.Hosts > 0 {
				l.Prefix, _ = addrspace.HostsToPrefix(l.Hosts)
			} else {
				l.Prefix = DefaultLANPrefix
			}
		}
		if strings.TrimSpace(l.Name) == "" {
			l.Name = "vlan" + itoa(l.VLAN)
		}
	}
	for i := range d.Links {
		if d.Links[i].Prefix == 0 {
			d.Links[i].Prefix = DefaultLinkPrefix
		}
	}
	for i := range d.Uplinks {
		if d.Uplinks[i].Prefix == 0 {
			d.Uplinks[i].Prefix = DefaultUplinkPrefix
		}
	}
}

// Marshal renders the design back in the given format.
func (d *Design) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	case FormatYAML, "yml", "":
		return yaml.Marshal(d)
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
}
