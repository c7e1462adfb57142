package flow

import "golang.org/x/exp/slices"

// Stack is an operand stack that tolerates underflow. When an item below the
// bottom is requested, fill creates a placeholder for a value that was live on
// entry; the placeholder is remembered on the negative stack so the incoming
// shape stays consistent for the rest of the simulation. A stack without fill
// reports underflow as ErrStackUnderflow.
type Stack[T any] struct {
	items    []T // bottom first
	negative []T // incoming placeholders, deepest first
	fill     func() T
}

// NewStack returns an empty stack; fill may be nil.
func NewStack[T any](fill func() T) *Stack[T] {
	return &Stack[T]{fill: fill}
}

func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Items returns the stack contents, bottom first.
func (s *Stack[T]) Items() []T {
	return slices.Clone(s.items)
}

// Negative returns the placeholders materialised so far, deepest first.
func (s *Stack[T]) Negative() []T {
	return slices.Clone(s.negative)
}

// Reset replaces the contents, keeping the fill function.
func (s *Stack[T]) Reset(items []T) {
	s.items = slices.Clone(items)
}

func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
}

// ensure grows the stack from below until it holds at least depth items.
func (s *Stack[T]) ensure(depth int) error {
	for len(s.items) < depth {
		if s.fill == nil {
			return ErrStackUnderflow
		}
		v := s.fill()
		s.items = slices.Insert(s.items, 0, v)
		s.negative = slices.Insert(s.negative, 0, v)
	}
	return nil
}

func (s *Stack[T]) Pop() (T, error) {
	var zero T
	if err := s.ensure(1); err != nil {
		return zero, err
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, nil
}

// PopN pops n items, top first.
func (s *Stack[T]) PopN(n int) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := s.Pop()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Peek returns the n-th item from the top, 0 being the top.
func (s *Stack[T]) Peek(n int) (T, error) {
	var zero T
	if err := s.ensure(n + 1); err != nil {
		return zero, err
	}
	return s.items[len(s.items)-1-n], nil
}

// Dup copies the n-th item from the top (1-based, as in DUPn) onto the top.
func (s *Stack[T]) Dup(n int) error {
	v, err := s.Peek(n - 1)
	if err != nil {
		return err
	}
	s.Push(v)
	return nil
}

// Swap exchanges the top with the (n+1)-th item, as in SWAPn.
func (s *Stack[T]) Swap(n int) error {
	if err := s.ensure(n + 1); err != nil {
		return err
	}
	top := len(s.items) - 1
	s.items[top], s.items[top-n] = s.items[top-n], s.items[top]
	return nil
}

// Clone returns an independent copy sharing the fill function.
func (s *Stack[T]) Clone() *Stack[T] {
	return &Stack[T]{
		items:    slices.Clone(s.items),
		negative: slices.Clone(s.negative),
		fill:     s.fill,
	}
}
