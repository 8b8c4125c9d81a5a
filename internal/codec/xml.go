package codec

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/clbanning/mxj"

	"github.com/micurley/chunkdata/pkg/types"
)

func init() {
	mxj.XMLEscapeChars(true)
}

// XML value type tags.
const (
	xmlNone  = "none"
	xmlInt   = "int"
	xmlFloat = "float"
	xmlBool  = "bool"
	xmlText  = "text"
	xmlList  = "list"
)

// XML encodes records in a django-objects document:
//
//	<django-objects version="1.0">
//	  <object model="app.entity" pk="1">
//	    <field name="title" type="text">...</field>
//	  </object>
//	</django-objects>
//
// Every field carries a type attribute so values decode to their original
// Go types.
type XML struct{}

// Name returns "xml".
func (XML) Name() string { return "xml" }

// Encode serializes records.
func (XML) Encode(records []types.Record, opts Options) ([]byte, error) {
	root := map[string]interface{}{"-version": "1.0"}
	if len(records) > 0 {
		objects := make([]interface{}, 0, len(records))
		for _, r := range records {
			objects = append(objects, xmlObject(r))
		}
		root["object"] = objects
	}

	m := mxj.Map{"django-objects": root}
	var (
		data []byte
		err  error
	)
	if opts.Indent > 0 {
		data, err = m.XmlIndent("", fmt.Sprintf("%*s", opts.Indent, ""))
	} else {
		data, err = m.Xml()
	}
	if err != nil {
		return nil, fmt.Errorf("codec: xml: %w", err)
	}
	return data, nil
}

func xmlObject(r types.Record) map[string]interface{} {
	obj := map[string]interface{}{
		"-model": r.Model,
		"-pk":    fmt.Sprint(wireValue(r.PK)),
	}

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		fields := make([]interface{}, 0, len(names))
		for _, name := range names {
			f := xmlValue(wireValue(r.Fields[name]))
			f["-name"] = name
			fields = append(fields, f)
		}
		obj["field"] = fields
	}
	return obj
}

func xmlValue(v interface{}) map[string]interface{} {
	switch x := v.(type) {
	case nil:
		return map[string]interface{}{"-type": xmlNone}
	case int64:
		return map[string]interface{}{"-type": xmlInt, "#text": strconv.FormatInt(x, 10)}
	case float64:
		return map[string]interface{}{"-type": xmlFloat, "#text": strconv.FormatFloat(x, 'g', -1, 64)}
	case bool:
		return map[string]interface{}{"-type": xmlBool, "#text": strconv.FormatBool(x)}
	case []interface{}:
		el := map[string]interface{}{"-type": xmlList}
		if len(x) > 0 {
			items := make([]interface{}, len(x))
			for i, item := range x {
				items[i] = xmlValue(item)
			}
			el["item"] = items
		}
		return el
	default:
		return map[string]interface{}{"-type": xmlText, "#text": fmt.Sprint(x)}
	}
}

// Decode parses a django-objects document.
func (XML) Decode(data []byte) ([]types.Record, error) {
	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, fmt.Errorf("codec: xml: %w", err)
	}
	raw, ok := m["django-objects"]
	if !ok {
		return nil, fmt.Errorf("codec: xml: missing django-objects root")
	}
	root, _ := raw.(map[string]interface{})

	objects := asList(root["object"])
	records := make([]types.Record, 0, len(objects))
	for i, o := range objects {
		obj, ok := o.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("codec: xml: object %d is malformed", i)
		}
		model, _ := obj["-model"].(string)
		if model == "" {
			return nil, fmt.Errorf("codec: xml: object %d has no model", i)
		}
		pk, _ := obj["-pk"].(string)
		r := types.Record{Model: model, PK: parseXMLKey(pk), Fields: map[string]interface{}{}}

		for _, f := range asList(obj["field"]) {
			field, ok := f.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("codec: xml: %s %s: malformed field", model, pk)
			}
			name, _ := field["-name"].(string)
			v, err := parseXMLValue(field)
			if err != nil {
				return nil, fmt.Errorf("codec: xml: %s %s: field %s: %w", model, pk, name, err)
			}
			r.Fields[name] = v
		}
		records = append(records, r)
	}
	return records, nil
}

func parseXMLValue(el map[string]interface{}) (interface{}, error) {
	text, _ := el["#text"].(string)
	typ, _ := el["-type"].(string)
	switch typ {
	case xmlNone:
		return nil, nil
	case xmlInt:
		return strconv.ParseInt(text, 10, 64)
	case xmlFloat:
		return strconv.ParseFloat(text, 64)
	case xmlBool:
		return strconv.ParseBool(text)
	case xmlList:
		items := asList(el["item"])
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			child, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("malformed list item")
			}
			v, err := parseXMLValue(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case xmlText, "":
		return text, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", typ)
	}
}

func parseXMLKey(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

// asList normalizes mxj's single-element-or-slice representation.
func asList(v interface{}) []interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return x
	default:
		return []interface{}{x}
	}
}
