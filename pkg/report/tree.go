package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
)

// Node is an object with the objects it spawned.
type Node struct {
	Value    mapreduce.Value
	Children []*Node
}

// BuildTree nests rows under their parent object. Rows without a parent, or
// whose parent is not among rows, become roots.
func BuildTree(rows []mapreduce.Value) []*Node {
	nodes := make(map[string]*Node, len(rows))
	ordered := make([]*Node, 0, len(rows))
	for _, v := range rows {
		n := &Node{Value: v}
		nodes[v.ObjectID] = n
		ordered = append(ordered, n)
	}

	var roots []*Node
	for _, n := range ordered {
		parentID, ok := n.Value.Parent.Get()
		parent, found := nodes[parentID]
		if !ok || !found || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	// Objects caught in a parent cycle are unreachable from any root.
	reached := make(map[*Node]bool, len(ordered))
	var mark func(n *Node)
	mark = func(n *Node) {
		if reached[n] {
			return
		}
		reached[n] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for _, n := range ordered {
		if !reached[n] {
			roots = append(roots, n)
			mark(n)
		}
	}
	return roots
}

// PrintTree writes every root that passes the classification filter, preceded
// by a blank line, and its descendants indented two spaces per level.
func PrintTree(w io.Writer, rows []mapreduce.Value, opts Options) error {
	less, err := opts.less()
	if err != nil {
		return err
	}
	p := &treePrinter{w: w, opts: opts, less: less, visited: make(map[*Node]bool)}
	return p.print(BuildTree(rows), 0)
}

type treePrinter struct {
	w       io.Writer
	opts    Options
	less    func(a, b mapreduce.Value) bool
	visited map[*Node]bool
}

func (p *treePrinter) print(nodes []*Node, level int) error {
	sorted := append([]*Node(nil), nodes...)
	if p.less != nil {
		sort.SliceStable(sorted, func(i, j int) bool { return p.less(sorted[i].Value, sorted[j].Value) })
	}

	for _, n := range sorted {
		if p.visited[n] {
			continue
		}
		// the filter selects whole trees by their root
		if level == 0 && !p.opts.keep(n.Value) {
			continue
		}
		p.visited[n] = true
		if level == 0 {
			if _, err := fmt.Fprintln(p.w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(p.w, strings.Repeat("  ", level)+p.opts.line(n.Value)); err != nil {
			return err
		}
		if err := p.print(n.Children, level+1); err != nil {
			return err
		}
	}
	return nil
}
