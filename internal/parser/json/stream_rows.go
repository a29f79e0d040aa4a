// Package json streams sales records from JSON exports into positional rows,
// the same shape the CSV parser produces.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"salesrollup/internal/config"
	csvparser "salesrollup/internal/parser/csv"
	"salesrollup/internal/transformer"
)

// StreamJSONRows decodes src and sends one *transformer.Row per record to out.
//
// Accepted layouts:
//   - a root array of objects, streamed element by element
//   - a root object whose first array field holds the records (envelope),
//     for example {"orders": [...], "exported_at": "..."}
//   - JSON lines, one object per line; these may also trail an array
//
// Keys go through the same header mapping as CSV headers, so an export keyed
// ORDERNUMBER, SALES, ... lands in order_number, sales, ... . Values are
// delivered as strings for the coerce stage: numbers keep their literal text,
// strings are trimmed, and null or a null_values entry becomes nil.
//
// Row.Line is the 1-based record number.
func StreamJSONRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	r, err := csvparser.DecodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()

	m := newMapper(columns, opt)
	line := 0

	emit := func(obj map[string]any) error {
		line++
		row := transformer.GetRow(len(columns))
		row.Line = line
		if err := m.fill(row.V, obj); err != nil {
			row.Free()
			if onErr != nil {
				onErr(line, err)
			}
			return nil
		}
		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	fail := func(err error) error {
		if onErr != nil && ctx.Err() == nil {
			onErr(line+1, err)
		}
		return err
	}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fail(fmt.Errorf("json: read first token: %w", err))
	}

	switch tok {
	case json.Delim('['):
		if err := streamArray(ctx, dec, emit); err != nil {
			return fail(err)
		}
		if err := expect(dec, json.Delim(']')); err != nil {
			return fail(err)
		}
	case json.Delim('{'):
		single, err := streamEnvelope(ctx, dec, emit)
		if err != nil {
			return fail(err)
		}
		if err := expect(dec, json.Delim('}')); err != nil {
			return fail(err)
		}
		if single != nil {
			if err := emit(single); err != nil {
				return err
			}
		}
	default:
		return fail(fmt.Errorf("json: unsupported root token %v (want object or array)", tok))
	}

	// Trailing JSON lines.
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err == io.EOF {
			return nil
		} else if err != nil {
			return fail(fmt.Errorf("json: decode record: %w", err))
		}
		if obj == nil {
			continue
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

// streamArray emits each element of the array whose '[' was consumed. null
// elements are skipped.
func streamArray(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: decode array element: %w", err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("json: array element is %T, want object", raw)
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
	return nil
}

// streamEnvelope walks the object whose '{' was consumed. The first array
// field is streamed as records and the remaining fields are skipped. When no
// field is an array the object itself is the one record and is returned.
func streamEnvelope(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) (map[string]any, error) {
	single := make(map[string]any)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read key: %w", err)
		}
		key, _ := kt.(string)

		vt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read value of %q: %w", key, err)
		}
		if vt == json.Delim('[') {
			if err := streamArray(ctx, dec, emit); err != nil {
				return nil, err
			}
			if err := expect(dec, json.Delim(']')); err != nil {
				return nil, err
			}
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return nil, fmt.Errorf("json: skip key: %w", err)
				}
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return nil, fmt.Errorf("json: skip value: %w", err)
				}
			}
			return nil, nil
		}
		v, err := materialize(dec, vt)
		if err != nil {
			return nil, err
		}
		single[key] = v
	}
	return single, nil
}

// materialize builds the value whose first token was already read.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		obj := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested key: %w", err)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested value: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			k, _ := kt.(string)
			obj[k] = v
		}
		return obj, expect(dec, json.Delim('}'))
	case '[':
		var arr []any
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array value: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, expect(dec, json.Delim(']'))
	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

func expect(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}

// mapper places record fields at their column positions.
type mapper struct {
	columns []string
	index   map[string]int
	hm      map[string]string
	nulls   map[string]struct{}
	// keys caches raw key -> column position (-1 when unused).
	keys map[string]int
}

func newMapper(columns []string, opt config.Options) *mapper {
	m := &mapper{
		columns: columns,
		index:   make(map[string]int, len(columns)),
		hm:      opt.StringMap("header_map"),
		nulls:   make(map[string]struct{}),
		keys:    make(map[string]int),
	}
	for i, c := range columns {
		m.index[c] = i
	}
	for _, s := range opt.StringSlice("null_values") {
		m.nulls[s] = struct{}{}
	}
	return m
}

func (m *mapper) position(key string) int {
	if i, ok := m.keys[key]; ok {
		return i
	}
	i, ok := m.index[csvparser.NormalizeHeader(key, false, m.hm)]
	if !ok {
		i = -1
	}
	m.keys[key] = i
	return i
}

// fill writes obj into dst. When a raw and a mapped key both reach one
// column, the key spelled as the column name wins.
func (m *mapper) fill(dst []any, obj map[string]any) error {
	for k, v := range obj {
		i := m.position(k)
		if i < 0 {
			continue
		}
		if k != m.columns[i] {
			if _, exact := obj[m.columns[i]]; exact {
				continue
			}
		}
		s, err := m.scalar(v)
		if err != nil {
			return fmt.Errorf("json: %s: %w", m.columns[i], err)
		}
		if s != nil {
			dst[i] = *s
		}
	}
	return nil
}

// scalar renders v as the string the coerce stage expects, or nil for a
// missing value.
func (m *mapper) scalar(v any) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case bool:
		s = fmt.Sprint(t)
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	if _, isNull := m.nulls[s]; s == "" || isNull {
		return nil, nil
	}
	return &s, nil
}
