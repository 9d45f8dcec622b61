package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/najoast/frametree/frame"
)

const sampleScript = `
events:
  - {type: attach, frame: main}
  - {type: attach, frame: ads, parent: main}
  - {type: attach, frame: video, parent: main}
  - {type: navigate, frame: ads, parent: main}
  - {type: detach, frame: video}
`

func TestParseScript(t *testing.T) {
	s, err := ParseScript(strings.NewReader(sampleScript))
	require.NoError(t, err)
	require.Len(t, s.Events, 5)

	require.Equal(t, Event{Type: EventAttach, FrameID: "ads", ParentID: "main"}, s.Events[1])
	require.Equal(t, EventDetach, s.Events[4].Type)
}

func TestParseScriptRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", "events:\n  - {type: reload, frame: main}\n"},
		{"missing frame", "events:\n  - {type: attach}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, ErrInvalidEvent)
		})
	}

	_, err := ParseScript(strings.NewReader("events: {"))
	require.Error(t, err)
}

func TestParseScriptEmpty(t *testing.T) {
	s, err := ParseScript(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, s.Events)
}

func TestScriptPlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleScript), 0644))

	s, err := LoadScript(path)
	require.NoError(t, err)

	tree := frame.NewTree()
	n := NewNotifier(tree, WithMailboxSize(2))
	require.NoError(t, n.Start(context.Background()))

	require.NoError(t, s.Play(context.Background(), n))
	n.Stop()

	require.Equal(t, 2, tree.Len())
	children := tree.ChildFrames("main")
	require.Len(t, children, 1)
	require.Equal(t, "ads", children[0].ID())
}

func TestLoadScriptMissingFile(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
