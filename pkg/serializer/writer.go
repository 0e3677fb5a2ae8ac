// Package serializer renders command output as JSON, YAML, or a flattened
// table, to stdout or to a file.
package serializer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// IsUnknown reports whether f is not a supported format.
func (f Format) IsUnknown() bool {
	switch f {
	case FormatJSON, FormatYAML, FormatTable:
		return false
	}
	return true
}

// StdoutPath is the special output path meaning stdout.
const StdoutPath = "-"

// Writer serializes values in a fixed format to a fixed destination.
type Writer struct {
	format Format
	out    io.Writer
	path   string
}

// NewWriter returns a Writer emitting to out.
func NewWriter(format Format, out io.Writer) *Writer {
	return &Writer{format: format, out: out}
}

// NewStdoutWriter returns a Writer emitting to stdout.
func NewStdoutWriter(format Format) *Writer {
	return NewWriter(format, os.Stdout)
}

// NewFileWriterOrStdout returns a Writer emitting to path, or to stdout when
// path is empty or "-". The file is created at Serialize time.
func NewFileWriterOrStdout(format Format, path string) *Writer {
	if path == "" || path == StdoutPath {
		return NewStdoutWriter(format)
	}
	return &Writer{format: format, path: path}
}

// Serialize encodes v and writes it out.
func (w *Writer) Serialize(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out := w.out
	if out == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", w.path, err)
		}
		defer f.Close()
		out = f
	}

	switch w.format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize to json: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to serialize to yaml: %w", err)
		}
		_, err = out.Write(data)
		return err
	case FormatTable:
		return writeTable(out, v)
	default:
		return fmt.Errorf("unknown output format: %q", w.format)
	}
}

// writeTable renders v as FIELD/VALUE rows, flattening nested structures into
// dotted key paths.
func writeTable(out io.Writer, v any) error {
	rows := map[string]string{}
	flatten("", reflect.ValueOf(v), rows)

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, rows[k])
	}
	return tw.Flush()
}

func flatten(prefix string, v reflect.Value, rows map[string]string) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			rows[prefix] = ""
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			flatten(joinKey(prefix, f.Name), v.Field(i), rows)
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			flatten(joinKey(prefix, fmt.Sprint(k.Interface())), v.MapIndex(k), rows)
		}
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			rows[prefix] = "[]"
			return
		}
		for i := 0; i < v.Len(); i++ {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), v.Index(i), rows)
		}
	default:
		rows[prefix] = fmt.Sprint(v.Interface())
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
