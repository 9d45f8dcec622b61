package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/lifecycle"
)

func TestReplayRendersTree(t *testing.T) {
	script, err := lifecycle.ParseScript(strings.NewReader(`
events:
  - {type: attach, frame: main}
  - {type: attach, frame: video, parent: main}
  - {type: attach, frame: ads, parent: main}
  - {type: attach, frame: tracker, parent: ads}
  - {type: attach, frame: stray, parent: gone}
  - {type: attach, frame: sub, parent: stray}
  - {type: detach, frame: video}
`))
	require.NoError(t, err)

	tree, err := replay(context.Background(), script)
	require.NoError(t, err)

	var buf bytes.Buffer
	renderTree(&buf, tree)

	want := `root: main
main
  ads
    tracker
orphans:
  stray (parent gone missing)
    sub
`
	require.Equal(t, want, buf.String())
}

func TestRenderTreeParentCycle(t *testing.T) {
	tree := frame.NewTree()
	tree.Add(frame.NewHandle("main", ""))
	tree.Add(frame.NewHandle("a", "b"))
	tree.Add(frame.NewHandle("b", "a"))

	var buf bytes.Buffer
	renderTree(&buf, tree)

	want := `root: main
main
orphans:
  a
    b
`
	require.Equal(t, want, buf.String())
}

func TestRenderEmptyTree(t *testing.T) {
	var buf bytes.Buffer
	renderTree(&buf, frame.NewTree())
	require.Equal(t, "root: <none>\n", buf.String())
}

func TestReplayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - {type: attach, frame: main}\n"), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"replay", "--json", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), `"id": "main"`)
}

func TestReplayCommandInvalidScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - {type: explode, frame: main}\n"), 0644))

	rootCmd.SetArgs([]string{"replay", path})
	defer rootCmd.SetArgs(nil)

	require.ErrorIs(t, rootCmd.Execute(), lifecycle.ErrInvalidEvent)
}

func TestVersionCommand(t *testing.T) {
	buildVersion, buildCommit, buildDate = "1.2.3", "abc", "today"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "frametree 1.2.3 (commit abc, built today)\n", out.String())
}
