package formpath

import (
	"strings"
)

const (
	// FreeTextKey holds the free-text body of a structured form.
	FreeTextKey = "pf_free_text"

	controlPrefix = "wp"
)

// Render replays a flattened form into page text. Every top-level node becomes a
// template call named after its key; a node whose children are nodes renders one call
// per child instance. Form-control leaves (wp*) and other top-level leaves are dropped,
// except the free-text body which is appended after the template calls.
func Render(form *Node) string {
	if form == nil {
		return ""
	}

	var (
		calls []string
		body  string
	)
	for _, key := range form.keys {
		switch v := form.children[key].(type) {
		case Leaf:
			if key == FreeTextKey {
				body = string(v)
			}
		case *Node:
			if strings.HasPrefix(key, controlPrefix) {
				continue
			}
			calls = appendCalls(calls, strings.ReplaceAll(key, "_", " "), v)
		}
	}

	out := strings.Join(calls, "\n")
	if body != "" {
		if out != "" {
			out += "\n"
		}
		out += body
	}
	return out
}

func appendCalls(calls []string, name string, n *Node) []string {
	var (
		params    strings.Builder
		hasParams bool
		instances []*Node
	)
	for _, key := range n.keys {
		switch v := n.children[key].(type) {
		case Leaf:
			params.WriteString("\n|")
			params.WriteString(key)
			params.WriteByte('=')
			params.WriteString(string(v))
			hasParams = true
		case *Node:
			instances = append(instances, v)
		}
	}
	if hasParams || len(instances) == 0 {
		calls = append(calls, "{{"+name+params.String()+"\n}}")
	}
	for _, inst := range instances {
		calls = appendCalls(calls, name, inst)
	}
	return calls
}
