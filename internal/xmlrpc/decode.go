package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fault is the remote system's application-level error, carried in the
// response envelope instead of a result value.
type Fault struct {
	Code    int64
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("remote fault %d: %s", f.Code, f.Message)
}

// ErrMalformedResponse is returned when the payload contains neither a
// params section nor a fault.
var ErrMalformedResponse = errors.New("xmlrpc: malformed method response")

// DecodeMethodResponse parses a methodResponse envelope into a Value. A
// fault in the envelope wins over any value node and is returned as a
// *Fault error. Whitespace between tags is insignificant.
func DecodeMethodResponse(data []byte) (Value, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var result Value
	haveResult := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Value{}, fmt.Errorf("xmlrpc: parse response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "fault":
			return Value{}, parseFault(dec)
		case "params":
			if !haveResult {
				v, err := parseParams(dec)
				if err != nil {
					return Value{}, err
				}
				result = v
				haveResult = true
			}
		}
	}

	if !haveResult {
		return Value{}, ErrMalformedResponse
	}
	return result, nil
}

func parseParams(dec *xml.Decoder) (Value, error) {
	var result Value
	haveResult := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("xmlrpc: parse params: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" && !haveResult {
				v, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				result = v
				haveResult = true
			}
		case xml.EndElement:
			if t.Name.Local == "params" {
				return result, nil
			}
		}
	}
}

func parseFault(dec *xml.Decoder) error {
	fault := &Fault{Code: -1, Message: "unknown fault"}
	for {
		tok, err := dec.Token()
		if err != nil {
			return fault
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := parseValue(dec)
				if err != nil {
					return fault
				}
				if v.Kind() == KindStruct {
					if code, ok := v.Member("faultCode"); ok {
						fault.Code = code.Int()
					}
					if msg, ok := v.Member("faultString"); ok {
						fault.Message = msg.Str()
					}
				}
				return fault
			}
		case xml.EndElement:
			if t.Name.Local == "fault" {
				return fault
			}
		}
	}
}

// parseValue is called after the opening <value> tag has been consumed. It
// reads through the matching </value>. Bare character data without a type
// element decodes as a string, per the wire format's default.
func parseValue(dec *xml.Decoder) (Value, error) {
	var text strings.Builder
	var typed Value
	haveTyped := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("xmlrpc: parse value: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			v, err := parseTypedValue(dec, t)
			if err != nil {
				return Value{}, err
			}
			typed = v
			haveTyped = true
		case xml.EndElement:
			if t.Name.Local == "value" {
				if haveTyped {
					return typed, nil
				}
				return String(text.String()), nil
			}
		}
	}
}

func parseTypedValue(dec *xml.Decoder, start xml.StartElement) (Value, error) {
	switch start.Name.Local {
	case "int", "i4", "i8":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return String(text), nil
		}
		return Int(n), nil
	case "double":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return String(text), nil
		}
		return Double(f), nil
	case "string":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return String(text), nil
	case "boolean":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return Bool(strings.TrimSpace(text) == "1"), nil
	case "nil":
		if err := skipElement(dec, start.Name.Local); err != nil {
			return Value{}, err
		}
		return Nil(), nil
	case "array":
		return parseArray(dec)
	case "struct":
		return parseStruct(dec)
	case "dateTime.iso8601":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return DateTime(strings.TrimSpace(text)), nil
	case "base64":
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return Base64(strings.TrimSpace(text)), nil
	default:
		// Unknown type tag: surface its inner text rather than failing the
		// whole response.
		text, err := collectText(dec, start.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return String(text), nil
	}
}

func parseArray(dec *xml.Decoder) (Value, error) {
	var items []Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("xmlrpc: parse array: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			// <data> is structural only
		case xml.EndElement:
			if t.Name.Local == "array" {
				return Array(items...), nil
			}
		}
	}
}

func parseStruct(dec *xml.Decoder) (Value, error) {
	members := map[string]Value{}
	var name string
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("xmlrpc: parse struct: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "member":
				name = ""
			case "name":
				text, err := collectText(dec, "name")
				if err != nil {
					return Value{}, err
				}
				name = text
			case "value":
				v, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				members[name] = v
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return Struct(members), nil
			}
		}
	}
}

// collectText gathers all character data up to the matching end element,
// descending through any nested markup.
func collectText(dec *xml.Decoder, name string) (string, error) {
	var text strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("xmlrpc: parse <%s>: %w", name, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 && t.Name.Local == name {
				return text.String(), nil
			}
			depth--
		}
	}
}

func skipElement(dec *xml.Decoder, name string) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("xmlrpc: skip <%s>: %w", name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 && t.Name.Local == name {
				return nil
			}
			depth--
		}
	}
}
