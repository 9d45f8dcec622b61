package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/lifecycle"
)

var replayJSON bool

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the resulting frames as JSON")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Play an event script into a fresh tree and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := lifecycle.LoadScript(args[0])
		if err != nil {
			return err
		}

		tree, err := replay(cmd.Context(), script)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if replayJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(tree.Frames())
		}
		renderTree(out, tree)
		return nil
	},
}

// replay applies every scripted event to a new tree.
func replay(ctx context.Context, script *lifecycle.Script) (*frame.Tree, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tree := frame.NewTree()
	n := lifecycle.NewNotifier(tree)
	if err := n.Start(ctx); err != nil {
		return nil, err
	}

	err := script.Play(ctx, n)
	n.Stop()
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// renderTree prints the root, every parentless frame with its subtree and
// then, under orphans, the frames whose parent is not registered followed
// by any frame left unprinted.
func renderTree(w io.Writer, tree *frame.Tree) {
	if root, ok := tree.Root(); ok {
		fmt.Fprintf(w, "root: %s\n", root.ID())
	} else {
		fmt.Fprintln(w, "root: <none>")
	}

	visited := make(map[string]bool)
	var orphans []frame.Frame

	for _, f := range tree.Frames() {
		if f.ParentID() == "" {
			printSubtree(w, tree, f, 0, visited)
			continue
		}
		if _, ok := tree.Get(f.ParentID()); !ok {
			orphans = append(orphans, f)
		}
	}

	if len(orphans) > 0 {
		fmt.Fprintln(w, "orphans:")
		for _, f := range orphans {
			printSubtree(w, tree, f, 1, visited)
		}
	}

	// Frames in a parent cycle are reachable from neither pass
	header := len(orphans) > 0
	for _, f := range tree.Frames() {
		if visited[f.ID()] {
			continue
		}
		if !header {
			fmt.Fprintln(w, "orphans:")
			header = true
		}
		printSubtree(w, tree, f, 1, visited)
	}
}

func printSubtree(w io.Writer, tree *frame.Tree, f frame.Frame, depth int, visited map[string]bool) {
	if visited[f.ID()] {
		return
	}
	visited[f.ID()] = true

	line := f.ID()
	if depth == 1 && f.ParentID() != "" {
		if _, ok := tree.Get(f.ParentID()); !ok {
			line += " (parent " + f.ParentID() + " missing)"
		}
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), line)

	for _, child := range tree.ChildFrames(f.ID()) {
		printSubtree(w, tree, child, depth+1, visited)
	}
}
