package flow

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks the graph against the built-in node registry.
func (g *Graph) Validate() error {
	return g.ValidateWith(DefaultRegistry())
}

// ValidateWith checks structure and decodes every node config, reporting all
// problems at once. On success each node's Config is populated.
func (g *Graph) ValidateWith(reg *Registry) error {
	if g == nil {
		return fmt.Errorf("flow: graph is nil")
	}
	if g.byID == nil {
		g.index()
	}

	var errs error
	starts := 0
	seen := make(map[string]struct{}, len(g.Nodes))

	for i, node := range g.Nodes {
		if node == nil {
			errs = multierr.Append(errs, fmt.Errorf("node #%d is empty", i))
			continue
		}
		if node.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("node #%d has no id", i))
			continue
		}
		if _, dup := seen[node.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("node %q: duplicate id", node.ID))
			continue
		}
		seen[node.ID] = struct{}{}

		if node.Type == TypeStart {
			starts++
		}

		handler, ok := reg.Get(node.Type)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("node %q: unknown type %q", node.ID, node.Type))
			continue
		}
		cfg, err := handler.Decode(node.Data)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("node %q (%s): %w", node.ID, node.Type, err))
			continue
		}
		node.Config = cfg
	}

	switch {
	case starts == 0:
		errs = multierr.Append(errs, fmt.Errorf("flow has no start node"))
	case starts > 1:
		errs = multierr.Append(errs, fmt.Errorf("flow has %d start nodes, expected exactly one", starts))
	}

	edgeIDs := make(map[string]struct{}, len(g.Edges))
	for i, edge := range g.Edges {
		label := edge.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if edge.ID != "" {
			if _, dup := edgeIDs[edge.ID]; dup {
				errs = multierr.Append(errs, fmt.Errorf("edge %s: duplicate id", label))
			}
			edgeIDs[edge.ID] = struct{}{}
		}
		source, ok := g.byID[edge.Source]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("edge %s: unknown source %q", label, edge.Source))
		}
		if _, ok := g.byID[edge.Target]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("edge %s: unknown target %q", label, edge.Target))
		}
		if ok && source.Type == TypeEnd {
			errs = multierr.Append(errs, fmt.Errorf("edge %s: end node %q cannot have outgoing edges", label, source.ID))
		}
	}

	return errs
}

// Problems flattens a validation error into a list of messages.
func Problems(err error) []string {
	if err == nil {
		return nil
	}
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
