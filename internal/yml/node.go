package yml

import (
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	Node yaml.Node
)

// Root unwraps a document node to its single content node.
func Root(node *yaml.Node) *Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return (*Node)(node.Content[0])
	}
	return (*Node)(node)
}

// Lookup returns the value of mapping key name (case-insensitive) or nil.
func (n *Node) Lookup(name string) *Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if strings.EqualFold(n.Content[i].Value, name) {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

func (n *Node) Items(callback func(index int, node *Node) error) error {
	for i := 0; i < len(n.Content); i++ {
		if err := callback(i, (*Node)(n.Content[i])); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// IsSequence reports whether n is a YAML list.
func (n *Node) IsSequence() bool {
	return n.Kind == yaml.SequenceNode
}

// Decode decodes n into v.
func (n *Node) Decode(v interface{}) error {
	return (*yaml.Node)(n).Decode(v)
}

// Expand rewrites every scalar value with fn, leaving keys untouched.
func (n *Node) Expand(fn func(string) string) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range n.Content {
			(*Node)(child).Expand(fn)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			(*Node)(n.Content[i]).Expand(fn)
		}
	case yaml.ScalarNode:
		if n.Tag == "!!str" || n.Tag == "" {
			n.Value = fn(n.Value)
		}
	}
}
