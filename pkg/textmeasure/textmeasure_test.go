package textmeasure

import (
	"slices"
	"testing"

	"github.com/go-drift/renderbridge/pkg/render"
)

// runeWidth measures every rune as one unit.
func runeWidth(s string) float64 {
	return float64(len([]rune(s)))
}

func TestWrapParagraph(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth float64
		preserve bool
		want     []string
	}{
		{name: "fits", text: "hello", maxWidth: 10, want: []string{"hello"}},
		{name: "breaks at space", text: "hello world", maxWidth: 8, want: []string{"hello", "world"}},
		{name: "long word splits", text: "abcdefgh", maxWidth: 3, want: []string{"abc", "def", "gh"}},
		{name: "narrower than a rune", text: "ab", maxWidth: 0.5, want: []string{"a", "b"}},
		{name: "collapses spaces", text: "a   b", maxWidth: 2, want: []string{"a", "b"}},
		{name: "preserve whitespace", text: "ab cd", maxWidth: 3, preserve: true, want: []string{"ab ", "cd"}},
		{name: "multibyte", text: "héllo wörld", maxWidth: 6, want: []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapParagraph(tt.text, tt.maxWidth, runeWidth, tt.preserve)
			if !slices.Equal(got, tt.want) {
				t.Errorf("wrapParagraph(%q, %v) = %q, want %q", tt.text, tt.maxWidth, got, tt.want)
			}
		})
	}
}

func TestLayoutLines(t *testing.T) {
	got := layoutLines("one two\n\nthree", 5, runeWidth, false)
	want := []Line{{"one", 3}, {"two", 3}, {"", 0}, {"three", 5}}
	if !slices.Equal(got, want) {
		t.Errorf("layoutLines = %v, want %v", got, want)
	}

	unwrapped := layoutLines("one two", 0, runeWidth, false)
	if len(unwrapped) != 1 || unwrapped[0].Text != "one two" {
		t.Errorf("unwrapped = %v", unwrapped)
	}
}

func newMeasurer(t *testing.T) *Measurer {
	t.Helper()
	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestLayout(t *testing.T) {
	m := newMeasurer(t)

	short, err := m.Layout("Hi", Style{}, 0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	long, err := m.Layout("Hello, renderer", Style{}, 0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if short.Width <= 0 || long.Width <= short.Width {
		t.Errorf("widths: short=%v long=%v", short.Width, long.Width)
	}
	if short.LineHeight <= 0 || short.Height != short.LineHeight {
		t.Errorf("single line height = %v, line height %v", short.Height, short.LineHeight)
	}

	wrapped, err := m.Layout("Hello, renderer", Style{}, long.Width/2)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(wrapped.Lines) < 2 {
		t.Errorf("expected wrapping, got %v", wrapped.Lines)
	}
	if wrapped.Width > long.Width/2 {
		t.Errorf("wrapped width %v exceeds %v", wrapped.Width, long.Width/2)
	}

	big, err := m.Layout("Hi", Style{FontSize: 32}, 0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if big.Width <= short.Width {
		t.Errorf("32dp width %v not larger than 16dp width %v", big.Width, short.Width)
	}

	capped, err := m.Layout("a\nb\nc", Style{MaxLines: 2, LineHeight: 10}, 0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(capped.Lines) != 2 || capped.Height != 20 {
		t.Errorf("capped = %d lines, height %v", len(capped.Lines), capped.Height)
	}
}

func TestMeasureModes(t *testing.T) {
	m := newMeasurer(t)
	natural, err := m.Layout("Hello", Style{}, 0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}

	w, h, err := m.Measure("Hello", Style{}, 500, render.MeasureModeExactly, 300, render.MeasureModeExactly)
	if err != nil || w != 500 || h != 300 {
		t.Errorf("exactly = %v x %v (%v), want 500 x 300", w, h, err)
	}

	w, h, err = m.Measure("Hello", Style{}, 500, render.MeasureModeAtMost, 2, render.MeasureModeAtMost)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if w >= 500 || float64(w) < natural.Width || h != 2 {
		t.Errorf("atMost = %v x %v, natural width %v", w, h, natural.Width)
	}

	w, _, err = m.Measure("Hello", Style{}, 1, render.MeasureModeUndefined, 0, render.MeasureModeUndefined)
	if err != nil || float64(w) < natural.Width {
		t.Errorf("undefined width = %v (%v), want >= %v", w, err, natural.Width)
	}
}

func TestNewFromTTFInvalid(t *testing.T) {
	if _, err := NewFromTTF([]byte("not a font")); err == nil {
		t.Error("expected parse error")
	}
}

type fallbackDelegate struct {
	render.NopDelegate
	measured []int32
	created  int
}

func (d *fallbackDelegate) CreateNode([]any) error {
	d.created++
	return nil
}

func (d *fallbackDelegate) Measure(nodeID int32, _ float32, _ render.MeasureMode, _ float32, _ render.MeasureMode) (float32, float32) {
	d.measured = append(d.measured, nodeID)
	return 7, 7
}

func TestDelegate(t *testing.T) {
	next := &fallbackDelegate{}
	d := NewDelegate(next, newMeasurer(t))

	err := d.CreateNode([]any{
		map[string]any{"id": int64(1), "name": "Text", "props": map[string]any{"text": "Hello", "fontSize": int64(20)}},
		map[string]any{"id": int64(2), "name": "View", "props": map[string]any{}},
	})
	if err != nil || next.created != 1 {
		t.Fatalf("CreateNode: err=%v forwarded=%d", err, next.created)
	}

	w, h := d.Measure(1, 0, render.MeasureModeUndefined, 0, render.MeasureModeUndefined)
	if w <= 7 || h <= 0 {
		t.Errorf("text node measured %v x %v", w, h)
	}
	if w, h := d.Measure(2, 0, render.MeasureModeUndefined, 0, render.MeasureModeUndefined); w != 7 || h != 7 {
		t.Errorf("view node measured %v x %v, want fallback", w, h)
	}

	if err := d.DeleteNode([]int32{1}); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	d.Measure(1, 0, render.MeasureModeUndefined, 0, render.MeasureModeUndefined)
	if !slices.Equal(next.measured, []int32{2, 1}) {
		t.Errorf("fallback measured %v, want [2 1]", next.measured)
	}
}
