// Package toposort orders nodes so that every node comes after its
// dependencies. Nodes with no ordering constraint between them keep their
// input order, so results are reproducible.
package toposort

import (
	"fmt"
	"strings"
)

// Node is a vertex to sort. Depends lists the keys that must come first.
type Node[K comparable] struct {
	Key     K
	Name    string
	Depends []K
}

// Unresolved describes a dependency that does not name any input node.
type Unresolved struct {
	Node       string
	Dependency string
}

// Error reports why a set of nodes could not be ordered.
type Error struct {
	// Duplicates lists names whose key was declared more than once.
	Duplicates []string
	// Unresolved lists dependencies that name no node.
	Unresolved []Unresolved
	// Cycle lists the names of the nodes forming a dependency cycle, in
	// dependency order, with the first node repeated at the end.
	Cycle []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicate: "+strings.Join(e.Duplicates, ", "))
	}
	for _, u := range e.Unresolved {
		parts = append(parts, fmt.Sprintf("%s depends on unknown %s", u.Node, u.Dependency))
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, "cycle: "+strings.Join(e.Cycle, " -> "))
	}
	return strings.Join(parts, "; ")
}

// Names returns every node name the error refers to.
func (e *Error) Names() []string {
	var names []string
	names = append(names, e.Duplicates...)
	for _, u := range e.Unresolved {
		names = append(names, u.Node)
	}
	if len(e.Cycle) > 1 {
		names = append(names, e.Cycle[:len(e.Cycle)-1]...)
	}
	return names
}

// Sort returns the indices of nodes in dependency order. Among nodes that are
// ready at the same time the one with the lowest input index goes first.
func Sort[K comparable](nodes []Node[K]) ([]int, error) {
	return SortNamed(nodes, nil)
}

// SortNamed is Sort with a lookup that names dependency keys matching no
// node. Keys the lookup does not know are formatted with fmt.
func SortNamed[K comparable](nodes []Node[K], name func(K) (string, bool)) ([]int, error) {
	index := make(map[K]int, len(nodes))
	var dupes []string
	for i, n := range nodes {
		if _, exists := index[n.Key]; exists {
			dupes = append(dupes, n.Name)
			continue
		}
		index[n.Key] = i
	}
	if len(dupes) > 0 {
		return nil, &Error{Duplicates: dupes}
	}

	var unresolved []Unresolved
	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		seen := make(map[K]bool, len(n.Depends))
		for _, dep := range n.Depends {
			if seen[dep] {
				continue
			}
			seen[dep] = true

			j, ok := index[dep]
			if !ok {
				unresolved = append(unresolved, Unresolved{Node: n.Name, Dependency: depName(dep, name)})
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}
	if len(unresolved) > 0 {
		return nil, &Error{Unresolved: unresolved}
	}

	// ready is kept sorted ascending by input index.
	var ready []int
	for i := range nodes {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, &Error{Cycle: findCycle(nodes, index, indegree)}
	}
	return order, nil
}

func depName[K comparable](dep K, name func(K) (string, bool)) string {
	if name != nil {
		if s, ok := name(dep); ok {
			return s
		}
	}
	return fmt.Sprint(dep)
}

func insertSorted(s []int, v int) []int {
	pos := len(s)
	for i, x := range s {
		if v < x {
			pos = i
			break
		}
	}
	s = append(s, 0)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

// findCycle walks dependencies among the nodes left unsorted until a node
// repeats. Every unsorted node has at least one unsorted dependency, so the
// walk always closes a loop.
func findCycle[K comparable](nodes []Node[K], index map[K]int, indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var path []int
	cur := start
	for {
		if p, seen := pos[cur]; seen {
			loop := path[p:]
			names := make([]string, 0, len(loop)+1)
			for _, i := range loop {
				names = append(names, nodes[i].Name)
			}
			return append(names, nodes[loop[0]].Name)
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := -1
		for _, dep := range nodes[cur].Depends {
			if j, ok := index[dep]; ok && indegree[j] > 0 {
				next = j
				break
			}
		}
		if next < 0 {
			return []string{nodes[cur].Name}
		}
		cur = next
	}
}
