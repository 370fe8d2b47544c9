package cache

import (
	"context"
	"fmt"
	"strings"
)

// Call is one recorded invocation.
type Call struct {
	Index  int    `json:"index"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Trace is the recorded history of one operation.
type Trace struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Calls []Call `json:"calls"`
}

// Replay reads the history recorded for name and pairs inputs with outputs
// by position. Unpaired trailing inputs are dropped. An operation that was
// never called yields an empty Trace.
func Replay(ctx context.Context, store Store, name string) (*Trace, error) {
	count, err := store.Counter(ctx, name)
	if err != nil {
		return nil, err
	}
	inputs, err := store.List(ctx, InputsKey(name))
	if err != nil {
		return nil, err
	}
	outputs, err := store.List(ctx, OutputsKey(name))
	if err != nil {
		return nil, err
	}
	n := min(len(inputs), len(outputs))
	t := &Trace{Name: name, Count: count, Calls: make([]Call, n)}
	for i := range n {
		t.Calls[i] = Call{Index: i, Input: inputs[i], Output: outputs[i]}
	}
	return t, nil
}

// String renders the trace the way it is printed by the CLI:
//
//	store was called 2 times:
//	store("foo") -> "0b6d..."
//	store(42) -> "a1c3..."
func (t *Trace) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s was called %d times:", t.Name, t.Count)
	for _, c := range t.Calls {
		fmt.Fprintf(&sb, "\n%s(%s) -> %s", t.Name, c.Input, c.Output)
	}
	return sb.String()
}
