package display

import (
	"fmt"
	"sync"
)

// Layout selects the now-playing presentation.
type Layout string

const (
	LayoutHorizontal Layout = "horizontal"
	LayoutVertical   Layout = "vertical"
)

// ParseLayout accepts "horizontal" or "vertical".
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutHorizontal, LayoutVertical:
		return Layout(s), nil
	default:
		return "", fmt.Errorf("unknown layout %q", s)
	}
}

// LayoutSwitch is the shared view-mode flag. The zero value is horizontal.
type LayoutSwitch struct {
	mu     sync.RWMutex
	layout Layout
}

func (s *LayoutSwitch) Get() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.layout == "" {
		return LayoutHorizontal
	}
	return s.layout
}

func (s *LayoutSwitch) Set(l Layout) {
	s.mu.Lock()
	s.layout = l
	s.mu.Unlock()
}

// Toggle flips between horizontal and vertical and returns the new layout.
func (s *LayoutSwitch) Toggle() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == LayoutVertical {
		s.layout = LayoutHorizontal
	} else {
		s.layout = LayoutVertical
	}
	return s.layout
}
