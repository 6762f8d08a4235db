package ui

import (
	"sort"
	"strings"

	"github.com/LayerDynamics/runtui/internal/event"
)

// callNode is one traced invocation with its nested children.
type callNode struct {
	call     event.Call
	ret      *event.Return
	children []*callNode
}

// callTree builds the nesting structure from CallID/ParentID linkage as
// call and return events arrive. Calls whose parent was never seen
// become roots.
type callTree struct {
	roots     []*callNode
	byID      map[int]*callNode
	collapsed map[int]bool
	// open holds entered-but-not-returned ids in entry order, used to
	// close the most recent call when a return carries no id.
	open []int
}

func newCallTree() *callTree {
	return &callTree{
		byID:      make(map[int]*callNode),
		collapsed: make(map[int]bool),
	}
}

func (t *callTree) addCall(c event.Call) {
	node := &callNode{call: c}
	t.byID[c.CallID] = node
	if parent := t.byID[c.ParentID]; parent != nil && c.ParentID != c.CallID {
		parent.children = append(parent.children, node)
	} else {
		t.roots = append(t.roots, node)
	}
	t.open = append(t.open, c.CallID)
}

func (t *callTree) addReturn(r event.Return) {
	id := r.CallID
	if id <= 0 {
		if len(t.open) == 0 {
			return
		}
		id = t.open[len(t.open)-1]
	}
	node := t.byID[id]
	if node == nil || node.ret != nil {
		return
	}
	ret := r
	node.ret = &ret
	for i := len(t.open) - 1; i >= 0; i-- {
		if t.open[i] == id {
			t.open = append(t.open[:i], t.open[i+1:]...)
			break
		}
	}
}

func (t *callTree) toggle(id int) {
	if t.collapsed[id] {
		delete(t.collapsed, id)
	} else {
		t.collapsed[id] = true
	}
}

// activeCount reports how many displayed calls have not returned yet.
func (t *callTree) activeCount() int { return len(t.open) }

// treeRow is one visible line of the flattened tree.
type treeRow struct {
	node      *callNode
	depth     int
	collapsed bool
}

// rows flattens the tree depth-first, skipping the subtrees of
// collapsed nodes.
func (t *callTree) rows() []treeRow {
	var out []treeRow
	var walk func(n *callNode, depth int)
	walk = func(n *callNode, depth int) {
		collapsed := t.collapsed[n.call.CallID]
		out = append(out, treeRow{node: n, depth: depth, collapsed: collapsed})
		if collapsed {
			return
		}
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	for _, r := range t.roots {
		walk(r, 0)
	}
	return out
}

func formatArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + args[k]
	}
	return strings.Join(parts, ", ")
}

func renderRow(row treeRow, width int, selected bool) string {
	indent := strings.Repeat("  ", row.depth)
	marker := "· "
	if len(row.node.children) > 0 {
		marker = "▾ "
		if row.collapsed {
			marker = "▸ "
		}
	}
	text := indent + marker + row.node.call.FunctionName + "(" + formatArgs(row.node.call.Args) + ")"
	if row.node.ret != nil {
		text += " → " + row.node.ret.ReturnValue
	}
	text = trunc(text, width)
	switch {
	case selected:
		return selectedStyle.Render(text)
	case row.node.ret == nil:
		return activeStyle.Render(text)
	default:
		return callStyle.Render(text)
	}
}
