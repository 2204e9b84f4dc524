package main

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/urfave/cli/v2"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/actions"
	"github.com/getlantern/geneva/v2/strategy"
)

func dot(c *cli.Context) error {
	input := c.Args().First()

	if input == "" {
		return cli.Exit("no strategy given", 1)
	}

	output := c.String("output")
	if output == "" {
		return cli.Exit(fmt.Sprintf("invalid output filename: `%s`", output), 1)
	}

	st, err := geneva.NewStrategy(input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid strategy: %v", err), 1)
	}

	g := graphviz.New()

	graph, err := g.Graph()
	if err != nil {
		return cli.Exit(err, 1)
	}

	defer func() {
		if err := graph.Close(); err != nil {
			fmt.Fprintf(cli.ErrWriter, "error closing graph: %v\n", err)
		}
		g.Close()
	}()

	if err = newGrapher(graph).strategy(st); err != nil {
		return cli.Exit(fmt.Sprintf("failed to graph strategy: %v", err), 1)
	}

	if c.Bool("verbose") {
		var buf bytes.Buffer
		if err := g.Render(graph, "dot", &buf); err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Fprintln(c.App.Writer, buf.String())
	}

	fmt.Fprintf(c.App.Writer, "writing SVG to %s\n", output)
	if err := g.RenderFilename(graph, graphviz.SVG, output); err != nil {
		return cli.Exit(err, 1)
	}

	return nil
}

// grapher turns a strategy into graph nodes. Node names only need to be unique.
type grapher struct {
	graph   *cgraph.Graph
	counter int
}

func newGrapher(graph *cgraph.Graph) *grapher {
	return &grapher{graph: graph}
}

func (g *grapher) name(base string) string {
	g.counter++
	return fmt.Sprintf("%s_%d", base, g.counter)
}

func (g *grapher) node(base, label string) (*cgraph.Node, error) {
	node, err := g.graph.CreateNode(g.name(base))
	if err != nil {
		return nil, err
	}
	node.SetLabel(label)

	return node, nil
}

func (g *grapher) edge(from, to *cgraph.Node) error {
	_, err := g.graph.CreateEdge(g.name("e"), from, to)
	return err
}

func (g *grapher) strategy(st *strategy.Strategy) error {
	for _, dir := range []strategy.Direction{strategy.DirectionOutbound, strategy.DirectionInbound} {
		root, err := g.node(dir.String(), dir.String())
		if err != nil {
			return err
		}
		root.SetShape("doublecircle")

		for _, at := range st.Forest(dir) {
			node, err := g.actionTree(at)
			if err != nil {
				return err
			}

			if err := g.edge(root, node); err != nil {
				return err
			}
		}
	}

	return nil
}

func (g *grapher) actionTree(at *actions.ActionTree) (*cgraph.Node, error) {
	trigger, err := g.node("trigger", fmt.Sprintf("trigger|{%s}", at.Trigger))
	if err != nil {
		return nil, err
	}
	trigger.SetShape("Mrecord")

	node, err := g.action(at.RootAction)
	if err != nil {
		return nil, err
	}

	if err := g.edge(trigger, node); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (g *grapher) action(action actions.Action) (*cgraph.Node, error) {
	switch t := action.(type) {
	case *actions.SendAction:
		return g.node("send", "send")
	case *actions.DropAction:
		return g.node("drop", "drop")
	case *actions.DuplicateAction:
		node, err := g.node("duplicate", "duplicate")
		if err != nil {
			return nil, err
		}
		return node, g.children(node, t.Left, t.Right)
	case *actions.FragmentAction:
		node, err := g.node("fragment",
			fmt.Sprintf("fragment|{proto:%s|size:%d|inOrder:%v}", t.Proto, t.FragSize, t.InOrder))
		if err != nil {
			return nil, err
		}
		node.SetShape("record")
		return node, g.children(node, t.FirstFragmentAction, t.SecondFragmentAction)
	case *actions.TamperAction:
		label := fmt.Sprintf("tamper|{%s:%s|%s", t.Proto, t.Field, t.Mode)
		if t.Mode != actions.TamperCorrupt {
			label += fmt.Sprintf("|%s", t.NewValue)
		}
		node, err := g.node("tamper", label+"}")
		if err != nil {
			return nil, err
		}
		node.SetShape("record")
		return node, g.children(node, t.Action)
	default:
		return nil, fmt.Errorf("unhandled action \"%T\"", action)
	}
}

func (g *grapher) children(parent *cgraph.Node, children ...actions.Action) error {
	for _, child := range children {
		node, err := g.action(child)
		if err != nil {
			return err
		}

		if err := g.edge(parent, node); err != nil {
			return err
		}
	}

	return nil
}
