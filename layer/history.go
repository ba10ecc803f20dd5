package layer

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultHistoryDepth bounds the undo stack when no depth is configured.
const DefaultHistoryDepth = 50

var (
	ErrNothingToUndo = errors.New("layer: nothing to undo")
	ErrNothingToRedo = errors.New("layer: nothing to redo")
)

// Command is one undoable edit: an already-applied forward mutation plus
// its inverse. Apply re-runs the forward mutation for redo, Revert undoes
// it. Both run through the same paths as the original edit, so the surface
// mirror and bus events fire on undo and redo too.
type Command struct {
	Name   string
	Apply  func() error
	Revert func() error
}

// History records committed commands for undo and redo. The undo stack is
// depth-bounded; past the bound the oldest command is discarded, never the
// newest.
type History struct {
	mu    sync.Mutex
	undo  []*Command
	redo  []*Command
	depth int
}

// NewHistory builds a History with the given depth; zero or negative means
// DefaultHistoryDepth.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{depth: depth}
}

// Push records a command that has already been applied. Any redo entries
// are discarded.
func (h *History) Push(cmd *Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, cmd)
	if len(h.undo) > h.depth {
		h.undo = h.undo[len(h.undo)-h.depth:]
	}
	h.redo = nil
}

// Undo reverts the most recent command and moves it to the redo stack,
// returning the command's name. If the revert fails the command stays on
// the undo stack.
func (h *History) Undo() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return "", ErrNothingToUndo
	}
	cmd := h.undo[len(h.undo)-1]
	if err := cmd.Revert(); err != nil {
		return cmd.Name, fmt.Errorf("layer: undo %s: %w", cmd.Name, err)
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, cmd)
	return cmd.Name, nil
}

// Redo re-applies the most recently undone command and moves it back to the
// undo stack, returning the command's name.
func (h *History) Redo() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return "", ErrNothingToRedo
	}
	cmd := h.redo[len(h.redo)-1]
	if err := cmd.Apply(); err != nil {
		return cmd.Name, fmt.Errorf("layer: redo %s: %w", cmd.Name, err)
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cmd)
	return cmd.Name, nil
}

// CanUndo reports whether an undoable command is recorded.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether an undone command is waiting for redo.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Depths returns the current undo and redo stack sizes.
func (h *History) Depths() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}
