package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitescope/internal/model"
)

// JSONWriter outputs results in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// shape selects how much of the result is written.
	shape model.Shape
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithShape selects the output shape. The default is model.ShapeJSON.
func WithShape(shape model.Shape) JSONWriterOption {
	return func(w *JSONWriter) {
		w.shape = shape
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		shape:      model.ShapeJSON,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the shaped result in JSON format.
func (w *JSONWriter) Write(result *model.AnalysisResult) (int, error) {
	return w.writeJSON(Shape(result, w.shape))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a shaped result with the generating version.
type JSONReport struct {
	// Version is the sitescope version that generated this report.
	Version string `json:"version"`

	// Shape is the shape of Result.
	Shape model.Shape `json:"shape"`

	// Result is the shaped analysis result.
	Result any `json:"result"`
}

// FullJSONWriter outputs results with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the sitescope version string.
	version string
}

// NewFullJSONWriter creates a writer for results with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the shaped result wrapped with metadata.
func (w *FullJSONWriter) Write(result *model.AnalysisResult) (int, error) {
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Shape:   w.shape,
		Result:  Shape(result, w.shape),
	})
}
