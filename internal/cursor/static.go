package cursor

import "context"

// StaticCenter returns the primary monitor's logical center. The resolver
// uses the same value as its terminal fallback.
type StaticCenter struct {
	layout LayoutSource
}

func NewStaticCenter(layout LayoutSource) *StaticCenter {
	return &StaticCenter{layout: layout}
}

func (s *StaticCenter) Name() string { return FallbackName }

func (s *StaticCenter) Resolve(ctx context.Context) (Position, error) {
	x, y := s.layout.Layout().PrimaryCenter()
	return Position{X: x, Y: y, Space: SpaceLogical}, nil
}
