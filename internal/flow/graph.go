package flow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Handles shared by several node types.
const (
	HandleDefault = ""
	HandleError   = "error"
	HandleInvalid = "invalid"
)

// Position is the canvas position saved by the dashboard editor.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed unit of work in a flow graph.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	Position Position       `json:"position"`

	// Config holds the typed configuration decoded from Data by Validate.
	Config any `json:"-"`
}

// Edge connects a source handle of one node to another node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Graph is a parsed flow: nodes plus edges indexed for traversal.
type Graph struct {
	Nodes []*Node
	Edges []Edge

	byID     map[string]*Node
	outgoing map[string][]Edge
}

// ParseGraph decodes the stored nodes and edges JSON documents.
func ParseGraph(nodes, edges []byte) (*Graph, error) {
	g := &Graph{}
	if len(strings.TrimSpace(string(nodes))) > 0 && string(nodes) != "null" {
		if err := json.Unmarshal(nodes, &g.Nodes); err != nil {
			return nil, fmt.Errorf("flow: decode nodes: %w", err)
		}
	}
	if len(strings.TrimSpace(string(edges))) > 0 && string(edges) != "null" {
		if err := json.Unmarshal(edges, &g.Edges); err != nil {
			return nil, fmt.Errorf("flow: decode edges: %w", err)
		}
	}
	g.index()
	return g, nil
}

func (g *Graph) index() {
	g.byID = make(map[string]*Node, len(g.Nodes))
	g.outgoing = make(map[string][]Edge, len(g.Nodes))
	for _, node := range g.Nodes {
		if node == nil {
			continue
		}
		if node.Data == nil {
			node.Data = map[string]any{}
		}
		if _, exists := g.byID[node.ID]; !exists {
			g.byID[node.ID] = node
		}
	}
	for _, edge := range g.Edges {
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.byID[id]
	return node, ok
}

// Start returns the first start node.
func (g *Graph) Start() (*Node, bool) {
	for _, node := range g.Nodes {
		if node != nil && node.Type == TypeStart {
			return node, true
		}
	}
	return nil, false
}

// HasEdge reports whether nodeID has an edge leaving the exact handle.
func (g *Graph) HasEdge(nodeID, handle string) bool {
	for _, edge := range g.outgoing[nodeID] {
		if edge.SourceHandle == handle {
			return true
		}
	}
	return false
}

// Next resolves the node following nodeID for the given outcome handle.
// An edge on the exact handle wins, then an edge without a handle. For the
// default outcome a node with a single outgoing edge follows it whatever its
// handle. Returns "" when the flow ends here.
func (g *Graph) Next(nodeID, handle string) string {
	edges := g.outgoing[nodeID]
	for _, edge := range edges {
		if edge.SourceHandle == handle {
			return edge.Target
		}
	}
	for _, edge := range edges {
		if edge.SourceHandle == HandleDefault {
			return edge.Target
		}
	}
	if handle == HandleDefault && len(edges) == 1 {
		return edges[0].Target
	}
	return ""
}

// MarshalNodes encodes the node list back to JSON.
func (g *Graph) MarshalNodes() ([]byte, error) {
	if g.Nodes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.Nodes)
}

// MarshalEdges encodes the edge list back to JSON.
func (g *Graph) MarshalEdges() ([]byte, error) {
	if g.Edges == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.Edges)
}
