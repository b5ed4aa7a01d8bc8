package membership

// Selection is the set of users picked in the add-member dialog. Toggling a
// user twice deselects it; Selected keeps the order users were picked in.
type Selection struct {
	order []string
	set   map[string]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{set: make(map[string]struct{})}
}

// Toggle flips the selection state of userID and reports whether it is now
// selected. Empty ids are ignored.
func (s *Selection) Toggle(userID string) bool {
	if userID == "" {
		return false
	}
	if _, ok := s.set[userID]; ok {
		delete(s.set, userID)
		for i, id := range s.order {
			if id == userID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return false
	}
	s.set[userID] = struct{}{}
	s.order = append(s.order, userID)
	return true
}

func (s *Selection) IsSelected(userID string) bool {
	_, ok := s.set[userID]
	return ok
}

// Selected returns a copy of the selected ids.
func (s *Selection) Selected() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Selection) Len() int {
	return len(s.order)
}

func (s *Selection) Clear() {
	s.order = nil
	s.set = make(map[string]struct{})
}
