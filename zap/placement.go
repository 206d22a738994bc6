package zap

import (
	"math"

	"github.com/hazyhaar/darkzap/dom"
)

// PlaceEditor returns the top-left corner of an editor of size editor
// anchored to the element box anchor, inside a viewport of size viewport.
//
// The editor goes below the element, flips above it when it would overflow the
// bottom edge and shifts left when it would overflow the right edge. If it is
// still out of bounds it is centered in the viewport.
func PlaceEditor(anchor dom.Rect, editor, viewport dom.Size) dom.Point {
	x := anchor.X
	if anchor.X+editor.Width > viewport.Width {
		x = anchor.X - math.Abs(editor.Width-anchor.Width)
	}
	y := anchor.Bottom()
	if anchor.Bottom()+editor.Height > viewport.Height {
		y = anchor.Y - editor.Height
	}

	if x < 0 || x+editor.Width >= viewport.Width ||
		y < 0 || y+editor.Height >= viewport.Height {
		x = (viewport.Width - editor.Width) / 2
		y = (viewport.Height - editor.Height) / 2
	}
	return dom.Point{X: x, Y: y}
}
