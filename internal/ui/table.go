package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muurk/nodelink/internal/discovery"
	"github.com/muurk/nodelink/internal/logging"
)

// RenderNodes lists discovered nodes, one per line
func RenderNodes(nodes []*discovery.Node) string {
	if len(nodes) == 0 {
		return HintStyle.Render("  No nodes found. Join the node's provisioning network and retry.")
	}

	sorted := make([]*discovery.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Instance < sorted[j].Instance })

	var b strings.Builder
	for i, n := range sorted {
		mac := n.MAC
		if mac == "" {
			mac = "-"
		}
		fmt.Fprintf(&b, "  %s %-24s %s  %s",
			SuccessTitleStyle.Render(fmt.Sprintf("%d.", i+1)),
			ValueStyle.Render(n.Instance),
			n.URL(),
			HintStyle.Render(mac),
		)
		if i < len(sorted)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderStore prints credential store namespaces in a stable order. Values
// under password keys are masked.
func RenderStore(data map[string]map[string]string) string {
	if len(data) == 0 {
		return HintStyle.Render("  Store is empty.")
	}

	namespaces := make([]string, 0, len(data))
	for ns := range data {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var sections []string
	for _, ns := range namespaces {
		keys := make([]string, 0, len(data[ns]))
		for k := range data[ns] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		params := make([]Param, 0, len(keys))
		for _, k := range keys {
			v := data[ns][k]
			if logging.IsSecretKey(k) {
				v = logging.Mask(v)
			}
			params = append(params, Param{Key: k, Value: v})
		}
		sections = append(sections, NamespaceStyle.Render(ns)+"\n"+renderParams(params))
	}
	return strings.Join(sections, "\n\n")
}
