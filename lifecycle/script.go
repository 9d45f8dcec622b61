package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a recorded sequence of lifecycle events.
//
//	events:
//	  - {type: attach, frame: main}
//	  - {type: attach, frame: child, parent: main}
//	  - {type: detach, frame: child}
type Script struct {
	Events []Event `yaml:"events"`
}

// LoadScript reads a script from a YAML file.
func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	return ParseScript(f)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	for i, ev := range s.Events {
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return &s, nil
}

// Play delivers every event to n in order. It stops at the first event
// that cannot be delivered.
func (s *Script) Play(ctx context.Context, n *Notifier) error {
	for i, ev := range s.Events {
		if err := n.Deliver(ctx, ev); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}
