package shards

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
)

// DoxygenDecoder reads the search shards Doxygen writes next to its HTML
// output (search/functions_8.js and friends):
//
//	var searchData=
//	[
//	  ['save',['Save',['../a00007.html#a5fe...',1,'CSimpleIniTempl::Save(OutputWriter &amp;a_oOutput) const ']]],
//	  ...
//	];
//
// Every location of a token becomes its own Entry. The entry kind comes from
// the category of a "functions_8" style key; keys without a known category
// (prefix partitioning) use Category, which defaults to "functions".
type DoxygenDecoder struct {
	Category string
}

var categoryKinds = map[string]index.Kind{
	"functions":  index.KindFunction,
	"related":    index.KindFunction,
	"classes":    index.KindType,
	"variables":  index.KindVariable,
	"properties": index.KindVariable,
	"defines":    index.KindMacro,
	"enums":      index.KindEnum,
	"enumvalues": index.KindEnumValue,
	"typedefs":   index.KindTypedef,
	"namespaces": index.KindNamespace,
	"files":      index.KindFile,
	"groups":     index.KindGroup,
	"pages":      index.KindPage,
}

func (d DoxygenDecoder) kind(key index.ShardKey) index.Kind {
	if kind, ok := categoryKinds[index.CategoryOf(key)]; ok {
		return kind
	}
	if d.Category == "" {
		return index.KindFunction
	}
	return categoryKinds[d.Category]
}

// Decode implements Decoder.
func (d DoxygenDecoder) Decode(key index.ShardKey, data []byte) (*index.Shard, error) {
	src := string(data)
	start := 0
	if i := strings.Index(src, "searchData"); i >= 0 {
		eq := strings.IndexByte(src[i:], '=')
		if eq < 0 {
			return nil, errors.New("searchData declaration without assignment")
		}
		start = i + eq + 1
	}

	p := &jsParser{src: src, pos: start}
	value, err := p.parseValue()
	if err != nil {
		return nil, fmt.Errorf("failed to parse searchData: %w", err)
	}
	rows, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("searchData is %T, expected an array", value)
	}

	kind := d.kind(key)
	shard := index.NewShard(key)
	skipped := 0
	for _, row := range rows {
		token, entries, ok := doxygenRow(row, kind)
		if !ok {
			skipped++
			continue
		}
		shard.Add(token, entries...)
	}
	if skipped > 0 {
		log.Debugf("Skipped %d malformed rows in shard %s", skipped, key)
	}
	return shard, nil
}

// doxygenRow converts ['token',['Display',[url,flag,text],...]] into entries.
func doxygenRow(row any, kind index.Kind) (string, []index.Entry, bool) {
	fields, ok := row.([]any)
	if !ok || len(fields) < 2 {
		return "", nil, false
	}
	rawToken, ok := fields[0].(string)
	if !ok {
		return "", nil, false
	}
	body, ok := fields[1].([]any)
	if !ok || len(body) < 2 {
		return "", nil, false
	}
	display, ok := body[0].(string)
	if !ok || display == "" {
		return "", nil, false
	}
	display = html.UnescapeString(display)

	var entries []index.Entry
	for _, loc := range body[1:] {
		parts, ok := loc.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		anchor, _ := parts[0].(string)
		if anchor == "" {
			continue
		}
		var text string
		if len(parts) > 2 {
			text, _ = parts[2].(string)
		}
		scope, signature := splitQualified(display, html.UnescapeString(text))
		entries = append(entries, index.Entry{
			DisplayName: display,
			Scope:       scope,
			Anchor:      anchor,
			Kind:        kind,
			Signature:   signature,
		})
	}
	if len(entries) == 0 {
		return "", nil, false
	}
	return doxygenToken(rawToken, display), entries, true
}

// splitQualified splits "Scope::name(args) const" into scope and signature.
// A text naming only the enclosing scope ("CSimpleIniTempl") is the scope.
func splitQualified(display, text string) (scope, signature string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	qualified := text
	if i := strings.Index(text, display+"("); i >= 0 {
		qualified = text[:i+len(display)]
		signature = strings.TrimSpace(text[i+len(display):])
	}

	switch {
	case qualified == display:
		return "", signature
	case strings.HasSuffix(qualified, "::"+display):
		return strings.TrimSuffix(qualified, "::"+display), signature
	}
	return qualified, signature
}

// doxygenToken undoes Doxygen's token escaping ("_7e" is '~', "_5f" is '_')
// and drops the "_N" disambiguation suffix newer versions append.
func doxygenToken(raw, display string) string {
	token := unescapeToken(raw)
	name := strings.ToLower(display)
	if token == name {
		return token
	}
	if i := strings.LastIndexByte(raw, '_'); i > 0 {
		if _, err := strconv.Atoi(raw[i+1:]); err == nil && unescapeToken(raw[:i]) == name {
			return name
		}
	}
	return token
}

func unescapeToken(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '_' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(raw[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(raw[i])
	}
	return strings.ToLower(b.String())
}

// jsParser reads the subset of JavaScript literals Doxygen emits: nested
// arrays, quoted strings, numbers and the true/false/null keywords.
type jsParser struct {
	src string
	pos int
}

func (p *jsParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsParser) parseValue() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, errors.New("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.parseArray()
	case c == '\'' || c == '"':
		return p.parseString()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case c >= 'a' && c <= 'z':
		return p.parseKeyword()
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
	}
}

func (p *jsParser) parseArray() ([]any, error) {
	p.pos++ // [
	var items []any
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, errors.New("unterminated array")
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, errors.New("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *jsParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'u':
				if p.pos+4 < len(p.src) {
					if v, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32); err == nil {
						b.WriteRune(rune(v))
						p.pos += 4
						break
					}
				}
				b.WriteByte(e)
			default:
				b.WriteByte(e)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", errors.New("unterminated string")
}

func (p *jsParser) parseNumber() (float64, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		p.pos++
	}
	return strconv.ParseFloat(p.src[start:p.pos], 64)
}

func (p *jsParser) parseKeyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= 'a' && p.src[p.pos] <= 'z' {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected identifier %q at offset %d", word, start)
	}
}
