package loop

// reasonSet keeps reasons unique in first-seen order.
type reasonSet[R comparable] struct {
	seen  map[R]struct{}
	order []R
}

func newReasonSet[R comparable]() *reasonSet[R] {
	return &reasonSet[R]{seen: map[R]struct{}{}}
}

func (s *reasonSet[R]) add(r R) {
	if _, ok := s.seen[r]; ok {
		return
	}
	s.seen[r] = struct{}{}
	s.order = append(s.order, r)
}

func (s *reasonSet[R]) len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *reasonSet[R]) list() []R {
	if s == nil || len(s.order) == 0 {
		return nil
	}
	out := make([]R, len(s.order))
	copy(out, s.order)
	return out
}
