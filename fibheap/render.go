package fibheap

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/list"
)

// Render draws the root list and every child tree. Marked nodes carry a
// trailing '*' and the extreme root is prefixed with '>'.
func (h *Heap[T]) Render() string {
	if h.top == none {
		return ""
	}
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)
	h.renderRing(l, h.top)
	return l.Render()
}

func (h *Heap[T]) renderRing(l list.Writer, start int32) {
	for i := start; ; {
		n := &h.nodes[i]
		label := fmt.Sprint(n.value)
		if n.marked {
			label += "*"
		}
		if i == h.top {
			label = "> " + label
		}
		l.AppendItem(label)
		if n.child != none {
			l.Indent()
			h.renderRing(l, n.child)
			l.UnIndent()
		}
		i = n.next
		if i == start {
			return
		}
	}
}
