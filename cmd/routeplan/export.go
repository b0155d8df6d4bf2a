// Copyright (c) 2025 Berik Ashimov

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"routeplan/internal/design"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errUnknownExport = errors.New("unknown export format")

func exportPlan(c *gin.Context, plan *design.Plan, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "xlsx", "":
		return exportXLSX(c, plan)
	case "yaml", "yml":
		return exportYAML(c, plan)
	case "json":
		return exportJSON(c, plan)
	}
	return errors.Wrapf(errUnknownExport, "%q", format)
}

func exportXLSX(c *gin.Context, plan *design.Plan) error {
	f, err := planWorkbook(plan)
	if err != nil {
		return err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	c.Header("Content-Disposition", "attachment; filename="+planFileName(plan, "xlsx"))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	return nil
}

func exportYAML(c *gin.Context, plan *design.Plan) error {
	out, err := yaml.Marshal(plan)
	if err != nil {
		return err
	}
	c.Header("Content-Disposition", "attachment; filename="+planFileName(plan, "yaml"))
	c.Data(http.StatusOK, "application/x-yaml; charset=utf-8", out)
	return nil
}

func exportJSON(c *gin.Context, plan *design.Plan) error {
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	c.Header("Content-Disposition", "attachment; filename="+planFileName(plan, "json"))
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
	return nil
}

// planWorkbook lays the plan out one sheet per block kind, plus the class
// summary and the routes of every router.
func planWorkbook(plan *design.Plan) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fillWorkbook(f, plan); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func fillWorkbook(f *excelize.File, plan *design.Plan) error {
	summarySheet := "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if err := writeSheetRows(f, summarySheet, buildSummarySheet(plan)); err != nil {
		return err
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{"LANs", buildLANSheet(plan.LANs)},
		{"Links", buildLinkSheet(plan.Links)},
		{"Uplinks", buildUplinkSheet(plan.Uplinks)},
		{"Routes", buildRouteSheet(plan.Routes)},
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return errors.Wrapf(err, "sheet %s", s.name)
		}
		if err := writeSheetRows(f, s.name, s.rows); err != nil {
			return err
		}
	}
	return nil
}

func buildSummarySheet(plan *design.Plan) [][]interface{} {
	out := [][]interface{}{
		{"plan", plan.Name},
		{"base", plan.Base},
		{"routers", plan.Routers},
		{},
		{"prefix", "blocks", "first", "last", "addresses"},
	}
	for _, r := range plan.Summary {
		out = append(out, []interface{}{fmt.Sprintf("/%d", r.Prefix), r.Count, r.First, r.Last, r.Addresses})
	}
	return out
}

func buildLANSheet(rows []design.LANBlock) [][]interface{} {
	out := [][]interface{}{{"router", "vlan", "name", "cidr", "mask", "gateway", "first_host", "broadcast", "usable"}}
	for _, r := range rows {
		out = append(out, []interface{}{design.Hostname(r.Router), r.VLAN, r.Name, r.CIDR, r.Mask, r.Gateway, r.FirstHost, r.Broadcast, r.Usable})
	}
	return out
}

func buildLinkSheet(rows []design.LinkBlock) [][]interface{} {
	out := [][]interface{}{{"a", "b", "cidr", "mask", "addr_a", "addr_b"}}
	for _, r := range rows {
		out = append(out, []interface{}{design.Hostname(r.A), design.Hostname(r.B), r.CIDR, r.Mask, r.AddrA, r.AddrB})
	}
	return out
}

func buildUplinkSheet(rows []design.UplinkBlock) [][]interface{} {
	out := [][]interface{}{{"router", "cidr", "mask", "router_addr", "switch_addr"}}
	for _, r := range rows {
		out = append(out, []interface{}{design.Hostname(r.Router), r.CIDR, r.Mask, r.RouterAddr, r.SwitchAddr})
	}
	return out
}

func buildRouteSheet(rows []design.Route) [][]interface{} {
	out := [][]interface{}{{"router", "destination", "mask", "next_hop", "via", "hops", "kind"}}
	for _, r := range rows {
		via := ""
		if r.Via > 0 {
			via = design.Hostname(r.Via)
		}
		out = append(out, []interface{}{design.Hostname(r.Router), r.Destination, r.Mask, r.NextHop, via, r.Hops, r.Kind})
	}
	return out
}

func writeSheetRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrapf(err, "sheet %s row %d", sheet, i+1)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "sheet %s row %d", sheet, i+1)
		}
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func planFileName(plan *design.Plan, ext string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(plan.Name, "_"), "_")
	if name == "" {
		name = design.DefaultName
	}
	return name + "_plan." + ext
}

// writePlanText prints the plan as aligned tables for the terminal.
func writePlanText(w io.Writer, plan *design.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "plan %s, base %s, %d routers\n\n", plan.Name, plan.Base, plan.Routers)

	fmt.Fprintln(tw, "ROUTER\tVLAN\tNAME\tCIDR\tGATEWAY\tUSABLE")
	for _, l := range plan.LANs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\n", design.Hostname(l.Router), l.VLAN, l.Name, l.CIDR, l.Gateway, l.Usable)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "LINK\tCIDR\tA\tB")
	for _, l := range plan.Links {
		fmt.Fprintf(tw, "%s-%s\t%s\t%s\t%s\n", design.Hostname(l.A), design.Hostname(l.B), l.CIDR, l.AddrA, l.AddrB)
	}
	if len(plan.Uplinks) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "UPLINK\tCIDR\tROUTER\tSWITCH")
		for _, u := range plan.Uplinks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", design.Hostname(u.Router), u.CIDR, u.RouterAddr, u.SwitchAddr)
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "ROUTER\tDESTINATION\tNEXT HOP\tHOPS\tKIND")
	for _, r := range plan.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", design.Hostname(r.Router), r.Destination, r.NextHop, r.Hops, r.Kind)
	}
	return tw.Flush()
}
