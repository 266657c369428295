package flow

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// DefaultActionsPath is where a flow export keeps its top-level actions.
const DefaultActionsPath = "properties.definition.actions"

// prettyOptions match a two-space indented JSON.stringify: Width 0 keeps every
// array element on its own line.
var prettyOptions = &pretty.Options{
	Width:    0,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// Document is a workflow definition held as raw JSON. Edits go through sjson so
// key order, number literals and untouched subtrees are kept as exported.
type Document struct {
	raw         []byte
	actionsPath string
}

// Parse validates data and returns a document rooted at actionsPath.
// An empty actionsPath selects DefaultActionsPath.
func Parse(data []byte, actionsPath string) (*Document, error) {
	if actionsPath == "" {
		actionsPath = DefaultActionsPath
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	if !gjson.GetBytes(data, actionsPath).IsObject() {
		return nil, fmt.Errorf("%w at %q", ErrNoActions, actionsPath)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Document{raw: raw, actionsPath: actionsPath}, nil
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() *Document {
	raw := make([]byte, len(d.raw))
	copy(raw, d.raw)
	return &Document{raw: raw, actionsPath: d.actionsPath}
}

// Raw returns the current document bytes without reformatting.
func (d *Document) Raw() []byte {
	return d.raw
}

// ActionsPath returns the gjson path of the top-level actions object.
func (d *Document) ActionsPath() string {
	return d.actionsPath
}

// ActionsRaw returns the raw JSON of the top-level actions object.
func (d *Document) ActionsRaw() []byte {
	return []byte(gjson.GetBytes(d.raw, d.actionsPath).Raw)
}

// path builds the gjson/sjson path of a nested action. Each name after the first
// is looked up in the "actions" object of its parent.
func (d *Document) path(names ...string) string {
	var b strings.Builder
	b.WriteString(d.actionsPath)
	for i, name := range names {
		if i > 0 {
			b.WriteString(".actions")
		}
		b.WriteByte('.')
		b.WriteString(gjson.Escape(name))
	}
	return b.String()
}

// ActionNames returns the top-level action names in document order.
func (d *Document) ActionNames() []string {
	var names []string
	gjson.GetBytes(d.raw, d.actionsPath).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	return names
}

// Get returns the action at the nested path.
func (d *Document) Get(names ...string) (gjson.Result, bool) {
	if len(names) == 0 {
		return gjson.Result{}, false
	}
	res := gjson.GetBytes(d.raw, d.path(names...))
	return res, res.Exists()
}

// Has reports whether an action exists at the nested path.
func (d *Document) Has(names ...string) bool {
	_, ok := d.Get(names...)
	return ok
}

// Set stores raw JSON at the nested path. An existing key keeps its position,
// a new key is appended to its parent object.
func (d *Document) Set(raw []byte, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("action path cannot be empty")
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w: value for %s", ErrInvalidJSON, strings.Join(names, "/"))
	}
	out, err := sjson.SetRawBytes(d.raw, d.path(names...), raw)
	if err != nil {
		return fmt.Errorf("failed to set action %s: %w", strings.Join(names, "/"), err)
	}
	d.raw = out
	return nil
}

// Delete removes the action at the nested path.
func (d *Document) Delete(names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("action path cannot be empty")
	}
	out, err := sjson.DeleteBytes(d.raw, d.path(names...))
	if err != nil {
		return fmt.Errorf("failed to delete action %s: %w", strings.Join(names, "/"), err)
	}
	d.raw = out
	return nil
}

// Reorder rewrites the top-level actions object so the named actions come last,
// in the order given. Other actions keep their relative order; names that do not
// exist are ignored.
func (d *Document) Reorder(last ...string) error {
	actions := gjson.GetBytes(d.raw, d.actionsPath)
	tail := make(map[string]gjson.Result, len(last))
	tailKeys := make(map[string]string, len(last))
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	write := func(rawKey, rawValue string) {
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(rawKey)
		buf.WriteByte(':')
		buf.WriteString(rawValue)
		n++
	}
	actions.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if slices.Contains(last, name) {
			tail[name] = value
			tailKeys[name] = key.Raw
			return true
		}
		write(key.Raw, value.Raw)
		return true
	})
	for _, name := range last {
		if value, ok := tail[name]; ok {
			write(tailKeys[name], value.Raw)
		}
	}
	buf.WriteByte('}')
	out, err := sjson.SetRawBytes(d.raw, d.actionsPath, buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to reorder actions: %w", err)
	}
	d.raw = out
	return nil
}

// Bytes returns the document formatted with two-space indentation and a trailing newline.
func (d *Document) Bytes() []byte {
	out := pretty.PrettyOptions(d.raw, prettyOptions)
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

// DanglingRunAfter lists runAfter references that do not name a sibling action.
// Nested scopes, condition branches and switch cases are checked against their own siblings.
func (d *Document) DanglingRunAfter() []string {
	var issues []string
	walkActions(gjson.GetBytes(d.raw, d.actionsPath), "", &issues)
	return issues
}

func walkActions(actions gjson.Result, parent string, issues *[]string) {
	if !actions.IsObject() {
		return
	}
	siblings := make(map[string]bool)
	actions.ForEach(func(key, _ gjson.Result) bool {
		siblings[key.String()] = true
		return true
	})
	actions.ForEach(func(key, action gjson.Result) bool {
		name := key.String()
		qualified := name
		if parent != "" {
			qualified = parent + "/" + name
		}
		action.Get("runAfter").ForEach(func(dep, _ gjson.Result) bool {
			if !siblings[dep.String()] {
				*issues = append(*issues, fmt.Sprintf("%s: runAfter references missing action %q", qualified, dep.String()))
			}
			return true
		})
		walkActions(action.Get("actions"), qualified, issues)
		walkActions(action.Get("else.actions"), qualified+"/else", issues)
		walkActions(action.Get("default.actions"), qualified+"/default", issues)
		action.Get("cases").ForEach(func(caseName, body gjson.Result) bool {
			walkActions(body.Get("actions"), qualified+"/"+caseName.String(), issues)
			return true
		})
		return true
	})
}
