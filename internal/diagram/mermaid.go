package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders the model as a Mermaid flowchart.
func RenderMermaid(m *Model) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	if m.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", m.Title)
	}

	for _, node := range m.Nodes {
		if node.Conditional {
			fmt.Fprintf(&b, "    %s{%q}\n", safeID(node.ID), node.Label)
		} else {
			fmt.Fprintf(&b, "    %s[%q]\n", safeID(node.ID), node.Label)
		}
	}
	for _, edge := range m.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", safeID(edge.From), label, safeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	for _, node := range m.Nodes {
		if statusClass(node.Status) != "" {
			fmt.Fprintf(&b, "    class %s %s\n", safeID(node.ID), statusClass(node.Status))
		}
	}
	return b.String()
}

// safeID converts a node id to a Mermaid-safe identifier.
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func statusClass(status string) string {
	switch status {
	case "pending", "running", "completed", "failed":
		return status
	}
	return ""
}
