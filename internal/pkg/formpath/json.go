package formpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON encodes the node as a JSON object with keys in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, key := range n.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		switch v := n.children[key].(type) {
		case Leaf:
			raw, err := json.Marshal(string(v))
			if err != nil {
				return err
			}
			buf.Write(raw)
		case *Node:
			if err := v.encode(buf); err != nil {
				return err
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON decodes a JSON object, preserving key order. Scalars become leaves and
// arrays become nodes keyed by index.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("formpath: expected object, got %v", tok)
	}
	*n = Node{children: make(map[string]Value)}
	return decodeObject(dec, n)
}

func decodeObject(dec *json.Decoder, n *Node) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("formpath: expected key, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return err
		}
		n.Set(key, v)
	}
	_, err := dec.Token()
	return err
}

func decodeArray(dec *json.Decoder, n *Node) error {
	for i := 0; dec.More(); i++ {
		v, err := decodeValue(dec)
		if err != nil {
			return err
		}
		n.Set(strconv.Itoa(i), v)
	}
	_, err := dec.Token()
	return err
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		child := NewNode()
		switch t {
		case '{':
			err = decodeObject(dec, child)
		case '[':
			err = decodeArray(dec, child)
		default:
			err = fmt.Errorf("formpath: unexpected %v", t)
		}
		return child, err
	case string:
		return Leaf(t), nil
	case json.Number:
		return Leaf(t.String()), nil
	case bool:
		return Leaf(strconv.FormatBool(t)), nil
	case nil:
		return Leaf(""), nil
	}
	return nil, fmt.Errorf("formpath: unexpected token %v", tok)
}
