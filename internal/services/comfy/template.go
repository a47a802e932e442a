package comfy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Node is a single step in an executor job graph.
type Node struct {
	ClassType string          `json:"class_type"`
	Inputs    map[string]any  `json:"inputs"`
	Meta      json.RawMessage `json:"_meta,omitempty"`
}

// Graph is an executor job graph keyed by node ID.
type Graph map[string]Node

// Clone returns a deep copy of the graph so bindings never mutate a
// shared template.
func (g Graph) Clone() Graph {
	cloned := make(Graph, len(g))
	for id, node := range g {
		inputs := make(map[string]any, len(node.Inputs))
		for key, value := range node.Inputs {
			inputs[key] = value
		}
		cloned[id] = Node{ClassType: node.ClassType, Inputs: inputs, Meta: node.Meta}
	}
	return cloned
}

// SlotBindings maps a node class type to the input values that should be
// overridden on every node of that class. Bindings address nodes by what
// they do rather than by fragile numeric node IDs.
type SlotBindings map[string]map[string]any

// Template is a reusable job graph loaded from disk.
type Template struct {
	path  string
	graph Graph
}

// LoadTemplate reads a job graph template from a JSON file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job template: %w", err)
	}
	var graph Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parse job template %q: %w", path, err)
	}
	if len(graph) == 0 {
		return nil, fmt.Errorf("job template %q has no nodes", path)
	}
	return &Template{path: path, graph: graph}, nil
}

// Path returns the file the template was loaded from.
func (t *Template) Path() string {
	return t.path
}

// Bind applies slot bindings to a copy of the template graph. Every
// binding must match at least one node; an unmatched class type means the
// template does not fit the request and submission would fail remotely in
// a far less debuggable way.
func (t *Template) Bind(bindings SlotBindings) (Graph, error) {
	graph := t.graph.Clone()

	classes := make([]string, 0, len(bindings))
	for class := range bindings {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		matched := false
		for id, node := range graph {
			if node.ClassType != class {
				continue
			}
			matched = true
			for input, value := range bindings[class] {
				graph[id].Inputs[input] = value
			}
		}
		if !matched {
			return nil, fmt.Errorf("job template %q has no node of class %q", t.path, class)
		}
	}
	return graph, nil
}
