// Package lld provides the low-level-discovery codec: percent-escaping of
// strings for safe embedding in discovery macros, and rendering of discovery
// documents in the {"data":[...]} shape the monitoring server consumes.
package lld

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyCollision is returned when two distinct raw attribute keys escape to
// the same macro token within one item.
var ErrKeyCollision = errors.New("lld: attribute keys collide after escaping")

// reserved holds the bytes that must be escaped before embedding a value in
// a discovery macro.
var reserved = func() [256]bool {
	var t [256]bool
	for _, c := range []byte("\\'\"`*?[]{}~$!&;()<>|#@\n%") {
		t[c] = true
	}
	return t
}()

// Escape replaces every reserved byte in s with '%' followed by its
// two-digit uppercase hex code. All other bytes pass through unchanged.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if reserved[c] {
			fmt.Fprintf(&b, "%%%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape is the inverse of Escape. A trailing '%' with fewer than two
// characters after it terminates decoding early, returning what was
// accumulated so far. A '%' not followed by two hex digits is copied through
// verbatim.
func Unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			// Fewer than two characters left after the '%'.
			break
		}
		hi, okHi := hexVal(s[i+1])
		lo, okLo := hexVal(s[i+2])
		if !okHi || !okLo {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Attr is a single discovery attribute.
type Attr struct {
	Key   string
	Value string
}

// Item is one discoverable entity: an ordered list of attributes.
type Item []Attr

// Document is a sequence of items rendered under the top-level "data" key.
type Document struct {
	Items []Item
}

// Append adds an item to the document.
func (d *Document) Append(item Item) {
	d.Items = append(d.Items, item)
}

// Render serializes the document as pretty-printed JSON. Attribute keys are
// escaped, upper-cased and wrapped as {#KEY}; values are escaped as-is.
// Attribute order within an item is preserved.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"data":[`)
	for i, item := range d.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		obj, err := renderItem(item)
		if err != nil {
			return nil, err
		}
		buf.Write(obj)
	}
	buf.WriteString(`]}`)

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("render discovery document: %w", err)
	}
	return out.Bytes(), nil
}

func renderItem(item Item) ([]byte, error) {
	seen := make(map[string]string, len(item))
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range item {
		macro := "{#" + strings.ToUpper(Escape(a.Key)) + "}"
		if prev, ok := seen[macro]; ok {
			return nil, fmt.Errorf("%w: %q and %q both produce %s",
				ErrKeyCollision, prev, a.Key, macro)
		}
		seen[macro] = a.Key

		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(macro)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(Escape(a.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
