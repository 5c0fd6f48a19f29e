package runtime

import "github.com/MattsPoche/sly-sub000/internal/value"

// maxStackDepth bounds the argument stack: a fixed ceiling so a runaway
// non-tail recursion fails predictably with a Scheme-visible error
// instead of exhausting process memory.
const maxStackDepth = 512

// ArgStack is the bounded stack of in-flight argument frames. Every
// non-tail call pushes a frame before recursing and pops it on return;
// tail calls reuse the current frame instead of pushing, which is what
// keeps looping tail-recursive Scheme code from ever growing this stack.
type ArgStack struct {
	frames [][]value.Value
	limit  int
}

// StackOverflow is the error value raised when a call would exceed the
// stack's configured limit.
type StackOverflow struct{}

func (StackOverflow) Error() string { return "argument stack exhausted" }

func NewArgStack() *ArgStack {
	return NewArgStackWithLimit(maxStackDepth)
}

// NewArgStackWithLimit is NewArgStack with an explicit depth ceiling,
// letting internal/pipeline honor RuntimeConfig.MaxStackDepth.
func NewArgStackWithLimit(limit int) *ArgStack {
	if limit <= 0 {
		limit = maxStackDepth
	}
	return &ArgStack{frames: make([][]value.Value, 0, limit), limit: limit}
}

// Push reserves a new frame for args, returning an error instead of
// panicking so callers can route it through the installed handler.
func (s *ArgStack) Push(args []value.Value) error {
	if len(s.frames) >= s.limit {
		return StackOverflow{}
	}
	s.frames = append(s.frames, args)
	return nil
}

func (s *ArgStack) Pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *ArgStack) Depth() int { return len(s.frames) }

// GCRoots implements RootSource: every value sitting in every live frame
// is reachable and must survive a collection.
func (s *ArgStack) GCRoots() []*value.Value {
	var roots []*value.Value
	for i := range s.frames {
		frame := s.frames[i]
		for j := range frame {
			roots = append(roots, &frame[j])
		}
	}
	return roots
}
