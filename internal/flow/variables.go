package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/charlesng35/engageflow/internal/models"
)

// Variables is the execution variable bag. Nested maps are addressed with dotted paths.
type Variables map[string]any

// Reserved variables maintained by the engine.
const (
	VarLastMessage = "last_message"
	VarLastError   = "last_error"
)

// DecodeVariables reads a stored variable bag.
func DecodeVariables(raw datatypes.JSON) (Variables, error) {
	vars := Variables{}
	if len(raw) == 0 || string(raw) == "null" {
		return vars, nil
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("flow: decode variables: %w", err)
	}
	return vars, nil
}

// Encode serialises the bag for storage.
func (v Variables) Encode() (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("flow: encode variables: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// Get resolves a dotted path.
func (v Variables) Get(path string) (any, bool) {
	return lookupPath(map[string]any(v), path)
}

// Set stores a value under a top-level key or a dotted path, creating nested maps.
func (v Variables) Set(path string, value any) {
	parts := strings.Split(path, ".")
	current := map[string]any(v)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func lookupPath(root any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	current := root
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[part]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// ContactExtra decodes the contact's extra info map.
func ContactExtra(contact *models.Contact) map[string]any {
	extra := map[string]any{}
	if contact == nil || len(contact.ExtraInfo) == 0 {
		return extra
	}
	_ = json.Unmarshal(contact.ExtraInfo, &extra)
	return extra
}

// Lookup resolves a template key: contact fields (name, number, email),
// extra.<key> from the contact extra info, otherwise a variable path.
func Lookup(contact *models.Contact, vars Variables, key string) (any, bool) {
	key = strings.TrimSpace(key)
	switch {
	case key == "name" && contact != nil:
		return contact.Name, true
	case key == "number" && contact != nil:
		return contact.Number, true
	case key == "email" && contact != nil:
		return contact.Email, true
	case strings.HasPrefix(key, "extra."):
		return lookupPath(ContactExtra(contact), strings.TrimPrefix(key, "extra."))
	}
	return vars.Get(key)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render replaces {{key}} placeholders. Unknown keys render empty.
func Render(tpl string, lookup func(string) (any, bool)) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		value, ok := lookup(key)
		if !ok {
			return ""
		}
		return Stringify(value)
	})
}

// RenderJSON interpolates a JSON template. Placeholders inside string
// literals are escaped as string content; placeholders outside strings become
// JSON values, with unknown keys rendered as null.
func RenderJSON(tpl string, lookup func(string) (any, bool)) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}

	var (
		out      strings.Builder
		inString bool
		escaped  bool
		last     int
	)
	for _, m := range placeholder.FindAllStringSubmatchIndex(tpl, -1) {
		segment := tpl[last:m[0]]
		inString, escaped = scanJSONString(segment, inString, escaped)
		out.WriteString(segment)

		value, ok := lookup(tpl[m[2]:m[3]])
		out.WriteString(jsonFragment(value, ok, inString))
		escaped = false
		last = m[1]
	}
	out.WriteString(tpl[last:])
	return out.String()
}

// scanJSONString tracks whether the end of segment lies inside a string literal.
func scanJSONString(segment string, inString, escaped bool) (bool, bool) {
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case !inString:
			inString = c == '"'
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		}
	}
	return inString, escaped
}

func jsonFragment(value any, ok, inString bool) string {
	if inString {
		if !ok {
			return ""
		}
		encoded := marshalJSON(Stringify(value))
		return strings.TrimSuffix(strings.TrimPrefix(encoded, `"`), `"`)
	}
	if !ok {
		return "null"
	}
	return marshalJSON(value)
}

func marshalJSON(value any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "null"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Stringify formats a variable value for messages and comparisons.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
