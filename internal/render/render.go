// Copyright (c) 2025 Berik Ashimov

// Package render turns a built plan into router configuration text using the
// embedded templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"routeplan/internal/addrspace"
	"routeplan/internal/design"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const DefaultTemplate = "cisco"

var (
	ErrUnknownTemplate = errors.New("render: unknown template")
	ErrUnknownRouter   = errors.New("render: unknown router")
)

var defaultTemplateVersions = map[string]string{
	"cisco": "v1",
	"vyos":  "v1",
}

var templateCommentPrefixes = map[string]string{
	"cisco": "!",
	"vyos":  "#",
}

// DefaultWANInterfaces are the point-to-point interfaces of a router in
// link order. Links beyond the list continue the eth0/N/0 pattern.
var DefaultWANInterfaces = []string{"eth0/0/0", "eth0/1/0", "eth0/2/0", "eth0/3/0"}

const DefaultLANInterface = "fa0/0"

// SSH enables the remote access block of the cisco template.
type SSH struct {
	Domain       string
	Username     string
	Secret       string
	EnableSecret string
	Version      int
	KeySize      int
}

type Options struct {
	Template      string
	WANInterfaces []string
	LANInterface  string
	SSH           *SSH
	GeneratedAt   time.Time
}

type TemplateInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type WANInterface struct {
	Name     string
	Peer     int
	PeerName string
	Addr     string
	PeerAddr string
	Mask     string
	Prefix   int
	CIDR     string
}

type LANContext struct {
	design.LANBlock
	Interface string
	PoolStart string
	PoolStop  string
}

// TemplateContext is what the templates see.
type TemplateContext struct {
	Plan         string
	Hostname     string
	RouterID     int
	WAN          []WANInterface
	LANInterface string
	LANs         []LANContext
	Uplink       *design.UplinkBlock
	Routes       []design.Route
	SSH          *SSH
}

type metadata struct {
	Plan            string
	Router          string
	Template        string
	TemplateVersion string
	GeneratedAt     time.Time
	Interfaces      int
	LANs            int
	Routes          int
}

// Render produces the configuration of router id.
func Render(plan *design.Plan, id int, opts Options) (string, error) {
	name, err := normalizeTemplateName(opts.Template)
	if err != nil {
		return "", err
	}
	body, err := loadTemplate(name)
	if err != nil {
		return "", err
	}
	view, ok := plan.Router(id)
	if !ok {
		return "", errors.Wrapf(ErrUnknownRouter, "%s has routers 1..%d, got %d", plan.Name, plan.Routers, id)
	}
	ctx, err := buildContext(plan, view, name, opts)
	if err != nil {
		return "", err
	}
	out, err := renderTemplate(name, body, ctx)
	if err != nil {
		return "", errors.Wrapf(err, "render %s for %s", name, view.Hostname)
	}
	meta := metadata{
		Plan:            plan.Name,
		Router:          view.Hostname,
		Template:        name,
		TemplateVersion: defaultTemplateVersions[name],
		GeneratedAt:     opts.GeneratedAt,
		Interfaces:      len(ctx.WAN),
		LANs:            len(ctx.LANs),
		Routes:          len(ctx.Routes),
	}
	return metadataHeader(meta, templateCommentPrefix(name)) + out + "\n", nil
}

// RenderAll renders every router of the plan in id order.
func RenderAll(plan *design.Plan, opts Options) ([]string, error) {
	out := make([]string, 0, plan.Routers)
	for id := 1; id <= plan.Routers; id++ {
		text, err := Render(plan, id, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, nil
}

// Templates lists the embedded templates.
func Templates() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(defaultTemplateVersions))
	for name, version := range defaultTemplateVersions {
		out = append(out, TemplateInfo{Name: name, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func buildContext(plan *design.Plan, view design.RouterView, tmpl string, opts Options) (TemplateContext, error) {
	lanIface := opts.LANInterface
	ctx := TemplateContext{
		Plan:     plan.Name,
		Hostname: view.Hostname,
		RouterID: view.ID,
		Uplink:   view.Uplink,
		Routes:   view.Routes,
		SSH:      normalizeSSH(opts.SSH),
	}
	for _, ifc := range view.Interfaces {
		ctx.WAN = append(ctx.WAN, WANInterface{
			Name:     wanName(tmpl, opts.WANInterfaces, ifc.Index),
			Peer:     ifc.Peer,
			PeerName: design.Hostname(ifc.Peer),
			Addr:     ifc.Addr,
			PeerAddr: ifc.PeerAddr,
			Mask:     ifc.Mask,
			Prefix:   ifc.Prefix,
			CIDR:     ifc.CIDR,
		})
	}
	if lanIface == "" {
		lanIface = lanName(tmpl, len(ctx.WAN))
	}
	ctx.LANInterface = lanIface
	for _, l := range view.LANs {
		start, stop, err := dhcpPool(l)
		if err != nil {
			return TemplateContext{}, err
		}
		ctx.LANs = append(ctx.LANs, LANContext{
			LANBlock:  l,
			Interface: fmt.Sprintf("%s.%d", lanIface, l.VLAN),
			PoolStart: start,
			PoolStop:  stop,
		})
	}
	return ctx, nil
}

// dhcpPool spans the first host up to the address below the gateway.
func dhcpPool(l design.LANBlock) (string, string, error) {
	gw, err := netip.ParseAddr(l.Gateway)
	if err != nil {
		return "", "", errors.Wrapf(err, "vlan %d gateway", l.VLAN)
	}
	stop := addrspace.FromU32(addrspace.ToU32(gw) - 1)
	return l.FirstHost, stop.String(), nil
}

func wanName(tmpl string, names []string, idx int) string {
	if tmpl == "vyos" && len(names) == 0 {
		return fmt.Sprintf("eth%d", idx)
	}
	if len(names) == 0 {
		names = DefaultWANInterfaces
	}
	if idx < len(names) {
		return names[idx]
	}
	return fmt.Sprintf("eth0/%d/0", idx)
}

func lanName(tmpl string, wanCount int) string {
	if tmpl == "vyos" {
		return fmt.Sprintf("eth%d", wanCount)
	}
	return DefaultLANInterface
}

func normalizeSSH(s *SSH) *SSH {
	if s == nil || strings.TrimSpace(s.Username) == "" {
		return nil
	}
	out := *s
	if out.Version == 0 {
		out.Version = 2
	}
	if out.KeySize == 0 {
		out.KeySize = 1024
	}
	if out.Domain == "" {
		out.Domain = "local"
	}
	return &out
}

var templateNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func normalizeTemplateName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return DefaultTemplate, nil
	}
	if !templateNamePattern.MatchString(name) {
		return "", errors.Wrapf(ErrUnknownTemplate, "invalid name %q", raw)
	}
	return name, nil
}

func loadTemplate(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", errors.Wrapf(ErrUnknownTemplate, "%q", name)
	}
	return string(data), nil
}

func templateCommentPrefix(name string) string {
	if prefix, ok := templateCommentPrefixes[name]; ok {
		return prefix
	}
	return "#"
}

func metadataHeader(meta metadata, prefix string) string {
	lines := []string{
		fmt.Sprintf("%s routeplan config", prefix),
		fmt.Sprintf("%s plan: %s", prefix, meta.Plan),
		fmt.Sprintf("%s router: %s", prefix, meta.Router),
		fmt.Sprintf("%s template: %s", prefix, meta.Template),
	}
	if meta.TemplateVersion != "" {
		lines = append(lines, fmt.Sprintf("%s template_version: %s", prefix, meta.TemplateVersion))
	}
	if !meta.GeneratedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("%s generated_at: %s", prefix, meta.GeneratedAt.UTC().Format(time.RFC3339)))
	}
	lines = append(lines, fmt.Sprintf("%s interfaces: %d", prefix, meta.Interfaces))
	lines = append(lines, fmt.Sprintf("%s lans: %d", prefix, meta.LANs))
	lines = append(lines, fmt.Sprintf("%s routes: %d", prefix, meta.Routes))
	return strings.Join(lines, "\n") + "\n\n"
}

func renderTemplate(name, body string, ctx TemplateContext) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"hostname": design.Hostname,
		"join":     strings.Join,
		"quote":    func(s string) string { return "'" + strings.ReplaceAll(s, "'", "") + "'" },
	}
}
