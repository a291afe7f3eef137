// Package textmeasure lays out plain text with an OpenType face and answers
// flex measure requests for text nodes.
package textmeasure

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-drift/renderbridge/pkg/render"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultFontSize is used when a style leaves FontSize unset.
const DefaultFontSize = 16

// Style controls how text is laid out.
type Style struct {
	// FontSize in dp. Zero selects DefaultFontSize.
	FontSize float64
	// LineHeight overrides the font's line height when positive.
	LineHeight float64
	// MaxLines truncates the layout when positive.
	MaxLines int
	// PreserveWhitespace keeps trailing spaces at wrap points.
	PreserveWhitespace bool
}

// Line is one laid-out line.
type Line struct {
	Text  string
	Width float64
}

// Layout is the result of laying out a string.
type Layout struct {
	Lines      []Line
	Width      float64
	Height     float64
	LineHeight float64
	Ascent     float64
	Descent    float64
}

// Measurer lays out text with one font. Faces are cached per size. A
// Measurer is safe for concurrent use.
type Measurer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

// New returns a Measurer using the Go Regular font.
func New() (*Measurer, error) {
	return NewFromTTF(goregular.TTF)
}

// NewFromTTF returns a Measurer for the given TrueType or OpenType data.
func NewFromTTF(data []byte) (*Measurer, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("textmeasure: parse font: %w", err)
	}
	return &Measurer{font: f, faces: make(map[float64]font.Face)}, nil
}

// face returns the cached face for size. Callers hold m.mu.
func (m *Measurer) face(size float64) (font.Face, error) {
	if f, ok := m.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("textmeasure: face size %v: %w", size, err)
	}
	m.faces[size] = f
	return f, nil
}

// Layout breaks text into lines no wider than maxWidth. A maxWidth of zero,
// a negative value or infinity disables wrapping; explicit newlines always
// break.
func (m *Measurer) Layout(text string, style Style, maxWidth float64) (Layout, error) {
	size := style.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	face, err := m.face(size)
	if err != nil {
		return Layout{}, err
	}

	metrics := face.Metrics()
	out := Layout{
		Ascent:     fixedToFloat(metrics.Ascent),
		Descent:    fixedToFloat(metrics.Descent),
		LineHeight: fixedToFloat(metrics.Height),
	}
	if style.LineHeight > 0 {
		out.LineHeight = style.LineHeight
	}

	measure := func(s string) float64 {
		return fixedToFloat(font.MeasureString(face, s))
	}
	out.Lines = layoutLines(text, maxWidth, measure, style.PreserveWhitespace)
	if style.MaxLines > 0 && len(out.Lines) > style.MaxLines {
		out.Lines = out.Lines[:style.MaxLines]
	}
	for _, line := range out.Lines {
		out.Width = math.Max(out.Width, line.Width)
	}
	out.Height = out.LineHeight * float64(len(out.Lines))
	return out, nil
}

// Measure answers a flex measure request for text. Exactly takes the given
// size, AtMost caps the laid-out size and Undefined leaves it unconstrained.
func (m *Measurer) Measure(text string, style Style, width float32, widthMode render.MeasureMode, height float32, heightMode render.MeasureMode) (float32, float32, error) {
	maxWidth := 0.0
	if widthMode != render.MeasureModeUndefined {
		maxWidth = float64(width)
	}
	layout, err := m.Layout(text, style, maxWidth)
	if err != nil {
		return 0, 0, err
	}
	return constrain(layout.Width, width, widthMode), constrain(layout.Height, height, heightMode), nil
}

func constrain(measured float64, limit float32, mode render.MeasureMode) float32 {
	switch mode {
	case render.MeasureModeExactly:
		return limit
	case render.MeasureModeAtMost:
		return min(float32(math.Ceil(measured)), limit)
	default:
		return float32(math.Ceil(measured))
	}
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// layoutLines splits text into paragraphs and wraps each one.
func layoutLines(text string, maxWidth float64, measure func(string) float64, preserveWhitespace bool) []Line {
	if maxWidth <= 0 || math.IsInf(maxWidth, 0) || math.IsNaN(maxWidth) {
		maxWidth = 0
	}
	paragraphs := strings.Split(text, "\n")
	lines := make([]Line, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		switch {
		case paragraph == "":
			lines = append(lines, Line{})
		case maxWidth == 0:
			lines = append(lines, Line{Text: paragraph, Width: measure(paragraph)})
		default:
			for _, text := range wrapParagraph(paragraph, maxWidth, measure, preserveWhitespace) {
				lines = append(lines, Line{Text: text, Width: measure(text)})
			}
		}
	}
	return lines
}
