package textmeasure

import (
	"sync"

	"github.com/go-drift/renderbridge/pkg/render"
)

type textNode struct {
	text  string
	style Style
}

// Delegate wraps a render delegate and answers measure requests for nodes
// that carry a "text" prop. Other nodes are measured by the wrapped
// delegate.
type Delegate struct {
	render.Delegate

	measurer *Measurer
	mu       sync.Mutex
	nodes    map[int32]textNode
}

// NewDelegate wraps next.
func NewDelegate(next render.Delegate, measurer *Measurer) *Delegate {
	return &Delegate{Delegate: next, measurer: measurer, nodes: make(map[int32]textNode)}
}

// CreateNode records text nodes before forwarding.
func (d *Delegate) CreateNode(args []any) error {
	d.track(args)
	return d.Delegate.CreateNode(args)
}

// UpdateNode records text changes before forwarding.
func (d *Delegate) UpdateNode(args []any) error {
	d.track(args)
	return d.Delegate.UpdateNode(args)
}

// DeleteNode forgets the deleted nodes before forwarding.
func (d *Delegate) DeleteNode(ids []int32) error {
	d.mu.Lock()
	for _, id := range ids {
		delete(d.nodes, id)
	}
	d.mu.Unlock()
	return d.Delegate.DeleteNode(ids)
}

// Measure lays out the node's text, or defers to the wrapped delegate for
// nodes without text.
func (d *Delegate) Measure(nodeID int32, width float32, widthMode render.MeasureMode, height float32, heightMode render.MeasureMode) (float32, float32) {
	d.mu.Lock()
	node, ok := d.nodes[nodeID]
	d.mu.Unlock()
	if !ok {
		return d.Delegate.Measure(nodeID, width, widthMode, height, heightMode)
	}
	w, h, err := d.measurer.Measure(node.text, node.style, width, widthMode, height, heightMode)
	if err != nil {
		d.Delegate.HandleRenderError(err)
		return 0, 0
	}
	return w, h
}

func (d *Delegate) track(args []any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range render.ParseNodeDescriptors(args) {
		text, ok := n.Props["text"].(string)
		if !ok {
			continue
		}
		node := d.nodes[n.ID]
		node.text = text
		if size, ok := n.Props["fontSize"].(float64); ok {
			node.style.FontSize = size
		} else if size, ok := n.Props["fontSize"].(int64); ok {
			node.style.FontSize = float64(size)
		}
		if lines, ok := n.Props["numberOfLines"].(int64); ok {
			node.style.MaxLines = int(lines)
		}
		d.nodes[n.ID] = node
	}
}
