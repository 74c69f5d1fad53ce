package xmlrpc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EncodeMethodCall serializes a methodCall envelope. Each param is encoded
// with encodeValue; unsupported Go types degrade to <nil/> the same way the
// wire format treats absent values.
func EncodeMethodCall(method string, params ...any) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString("<methodCall>\n")
	b.WriteString("  <methodName>" + escapeXML(method) + "</methodName>\n")
	b.WriteString("  <params>\n")
	for _, p := range params {
		b.WriteString("    <param>")
		encodeValue(&b, p)
		b.WriteString("</param>\n")
	}
	b.WriteString("  </params>\n")
	b.WriteString("</methodCall>\n")
	return []byte(b.String())
}

func encodeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("<value><nil/></value>")
	case Value:
		encodeWireValue(b, t)
	case string:
		b.WriteString("<value><string>" + escapeXML(t) + "</string></value>")
	case bool:
		if t {
			b.WriteString("<value><boolean>1</boolean></value>")
		} else {
			b.WriteString("<value><boolean>0</boolean></value>")
		}
	case int:
		b.WriteString("<value><int>" + strconv.Itoa(t) + "</int></value>")
	case int32:
		b.WriteString("<value><int>" + strconv.FormatInt(int64(t), 10) + "</int></value>")
	case int64:
		b.WriteString("<value><int>" + strconv.FormatInt(t, 10) + "</int></value>")
	case float32:
		encodeFloat(b, float64(t))
	case float64:
		encodeFloat(b, t)
	case []any:
		b.WriteString("<value><array><data>")
		for _, item := range t {
			encodeValue(b, item)
		}
		b.WriteString("</data></array></value>")
	case map[string]any:
		// Sorted member order keeps request bodies deterministic; the
		// remote side does not care about ordering.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<value><struct>")
		for _, k := range keys {
			b.WriteString("<member><name>" + escapeXML(k) + "</name>")
			encodeValue(b, t[k])
			b.WriteString("</member>")
		}
		b.WriteString("</struct></value>")
	default:
		b.WriteString("<value><string>" + escapeXML(fmt.Sprintf("%v", t)) + "</string></value>")
	}
}

func encodeFloat(b *strings.Builder, f float64) {
	if f == float64(int64(f)) {
		// Whole-number floats still travel as int; Odoo accepts either but
		// the original client encoded by integrality, not static type.
		b.WriteString("<value><int>" + strconv.FormatInt(int64(f), 10) + "</int></value>")
		return
	}
	b.WriteString("<value><double>" + strconv.FormatFloat(f, 'f', -1, 64) + "</double></value>")
}

func encodeWireValue(b *strings.Builder, v Value) {
	switch v.kind {
	case KindNil:
		b.WriteString("<value><nil/></value>")
	case KindString:
		b.WriteString("<value><string>" + escapeXML(v.str) + "</string></value>")
	case KindInt:
		b.WriteString("<value><int>" + strconv.FormatInt(v.num, 10) + "</int></value>")
	case KindDouble:
		b.WriteString("<value><double>" + strconv.FormatFloat(v.flt, 'f', -1, 64) + "</double></value>")
	case KindBool:
		if v.bl {
			b.WriteString("<value><boolean>1</boolean></value>")
		} else {
			b.WriteString("<value><boolean>0</boolean></value>")
		}
	case KindArray:
		b.WriteString("<value><array><data>")
		for _, item := range v.arr {
			encodeWireValue(b, item)
		}
		b.WriteString("</data></array></value>")
	case KindStruct:
		b.WriteString("<value><struct>")
		for _, name := range v.MemberNames() {
			m := v.mem[name]
			b.WriteString("<member><name>" + escapeXML(name) + "</name>")
			encodeWireValue(b, m)
			b.WriteString("</member>")
		}
		b.WriteString("</struct></value>")
	case KindDateTime:
		b.WriteString("<value><dateTime.iso8601>" + v.str + "</dateTime.iso8601></value>")
	case KindBase64:
		b.WriteString("<value><base64>" + v.str + "</base64></value>")
	}
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }
