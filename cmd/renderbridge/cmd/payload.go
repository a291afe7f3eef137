package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/inspect"
	"gopkg.in/yaml.v3"
)

func init() {
	RegisterCommand(&Command{
		Name:  "decode",
		Short: "Print an encoded payload as JSON or YAML",
		Long: `Decode a binary payload and print its value.

The payload is read from FILE, or from standard input when FILE is "-" or
omitted. With --base64 the input is base64 text.

Flags:
  --format json|yaml   Output format (default json)
  --base64             Input is base64 encoded`,
		Usage: "renderbridge decode [--format json|yaml] [--base64] [FILE]",
		Run:   runDecode,
	})
	RegisterCommand(&Command{
		Name:  "encode",
		Short: "Encode a JSON or YAML value as a payload",
		Long: `Encode a value into the binary payload format.

The value is read from FILE, or from standard input when FILE is "-" or
omitted. Whole JSON numbers become integers; other numbers become doubles.

Flags:
  --format json|yaml   Input format (default json)
  --base64             Write base64 text instead of raw bytes`,
		Usage: "renderbridge encode [--format json|yaml] [--base64] [FILE]",
		Run:   runEncode,
	})
}

func runDecode(args []string) error {
	f, err := parseFlags(args, []string{"--format"}, []string{"--base64"})
	if err != nil {
		return err
	}
	format, err := checkFormat(f.value("--format", "json"))
	if err != nil {
		return err
	}
	data, err := readInput(f.args)
	if err != nil {
		return err
	}
	if f.set["--base64"] {
		if data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(string(data))); err != nil {
			return fmt.Errorf("input is not base64: %w", err)
		}
	}
	value, err := codec.DefaultCodec.Decode(data)
	if err != nil {
		return err
	}
	return writeValue(stdout, inspect.JSONSafe(value), format)
}

func runEncode(args []string) error {
	f, err := parseFlags(args, []string{"--format"}, []string{"--base64"})
	if err != nil {
		return err
	}
	format, err := checkFormat(f.value("--format", "json"))
	if err != nil {
		return err
	}
	data, err := readInput(f.args)
	if err != nil {
		return err
	}
	value, err := parseValue(data, format)
	if err != nil {
		return err
	}
	payload, err := codec.DefaultCodec.Encode(value)
	if err != nil {
		return err
	}
	if f.set["--base64"] {
		_, err = fmt.Fprintln(stdout, base64.StdEncoding.EncodeToString(payload))
		return err
	}
	_, err = stdout.Write(payload)
	return err
}

func checkFormat(format string) (string, error) {
	switch format = strings.ToLower(format); format {
	case "json", "yaml":
		return format, nil
	default:
		return "", fmt.Errorf("unknown format %q (use json or yaml)", format)
	}
}

func readInput(args []string) ([]byte, error) {
	switch {
	case len(args) > 1:
		return nil, fmt.Errorf("expected at most one input file, got %d", len(args))
	case len(args) == 0 || args[0] == "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(args[0])
	}
}

func writeValue(w io.Writer, value any, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// parseValue reads a JSON or YAML document into codec-ready values.
func parseValue(data []byte, format string) (any, error) {
	var value any
	if format == "yaml" {
		if err := yaml.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		return value, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	return normalizeNumbers(value), nil
}

// normalizeNumbers turns json.Number into int64 when whole and float64
// otherwise.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}

func compactJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
