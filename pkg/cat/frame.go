package cat

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// FieldKind is the encoding rule of a parameter field.
type FieldKind int

const (
	// Digits is a zero-padded unsigned decimal number.
	Digits FieldKind = iota
	// Enum is a code looked up in an EnumTable.
	Enum
	// Text is raw printable ASCII of fixed width.
	Text
)

// Field describes one fixed-width parameter of a frame.
type Field struct {
	Name  string
	Kind  FieldKind
	Width int
	Table *EnumTable // Enum fields only
	// Optional may only be set on the last field of a shape. A frame may
	// then carry the shape with or without this field, nothing else.
	Optional bool
}

// DigitsField declares a zero-padded decimal field.
func DigitsField(name string, width int) Field {
	return Field{Name: name, Kind: Digits, Width: width}
}

// EnumField declares an enum field using table's width.
func EnumField(name string, table *EnumTable) Field {
	return Field{Name: name, Kind: Enum, Width: table.Width, Table: table}
}

// TextField declares a raw text field.
func TextField(name string, width int) Field {
	return Field{Name: name, Kind: Text, Width: width}
}

// Variant selects which of a verb's shapes applies.
type Variant int

const (
	// VariantQuery is the shape of the parameters sent with a query.
	VariantQuery Variant = iota
	// VariantReply is the shape of the radio's answer to a query.
	VariantReply
	// VariantSet is the shape of a set command, and of its echo.
	VariantSet
)

func (v Variant) String() string {
	switch v {
	case VariantQuery:
		return "query"
	case VariantReply:
		return "reply"
	case VariantSet:
		return "set"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Layout is the static description of one verb. A nil shape with the
// matching Can* flag false means the verb has no such variant.
type Layout struct {
	Verb     string
	CanQuery bool
	CanSet   bool
	Query    []Field
	Reply    []Field
	Set      []Field
	// AltSets are further set shapes of a verb whose set frames are told
	// apart by a selector field. Encode takes the first shape the
	// parameters fit and Decode the first shape the frame parses as.
	AltSets [][]Field
}

// shapes lists every shape of variant v, the primary one first.
func (l Layout) shapes(v Variant) [][]Field {
	primary, ok := l.shape(v)
	if !ok {
		return nil
	}
	if v == VariantSet {
		return append([][]Field{primary}, l.AltSets...)
	}
	return [][]Field{primary}
}

func (l Layout) shape(v Variant) ([]Field, bool) {
	switch v {
	case VariantQuery:
		return l.Query, l.CanQuery
	case VariantReply:
		return l.Reply, l.CanQuery
	case VariantSet:
		return l.Set, l.CanSet
	}
	return nil, false
}

// Value is a logical field value. Digits fields use Int; Enum fields use
// Text holding the tag; Text fields use Text verbatim.
type Value struct {
	Int  int
	Text string
}

// Int builds a numeric value.
func Int(n int) Value { return Value{Int: n} }

// Tag builds an enum or text value.
func Tag(s string) Value { return Value{Text: s} }

func (v Value) String() string {
	if v.Text != "" {
		return v.Text
	}
	return fmt.Sprintf("%d", v.Int)
}

// Command is one protocol operation. Params line up with the verb's query
// or set shape.
type Command struct {
	Verb   string
	Query  bool
	Params []Value
}

// NewQuery builds a query command.
func NewQuery(verb string, params ...Value) Command {
	return Command{Verb: verb, Query: true, Params: params}
}

// NewSet builds a set command.
func NewSet(verb string, params ...Value) Command {
	return Command{Verb: verb, Params: params}
}

func (c Command) variant() Variant {
	if c.Query {
		return VariantQuery
	}
	return VariantSet
}

// ParsedResponse is a decoded frame: the verb and its named fields.
type ParsedResponse struct {
	Verb   string
	Fields map[string]Value
}

// Has reports whether the frame carried the named field.
func (p *ParsedResponse) Has(name string) bool {
	_, ok := p.Fields[name]
	return ok
}

// Int returns a numeric field.
func (p *ParsedResponse) Int(name string) (int, error) {
	v, ok := p.Fields[name]
	if !ok {
		return 0, &Error{Kind: ErrMalformedField, Verb: p.Verb, Field: name, Detail: "field absent"}
	}
	return v.Int, nil
}

// Tag returns an enum tag or text field.
func (p *ParsedResponse) Tag(name string) (string, error) {
	v, ok := p.Fields[name]
	if !ok {
		return "", &Error{Kind: ErrMalformedField, Verb: p.Verb, Field: name, Detail: "field absent"}
	}
	return v.Text, nil
}

// Codec turns Commands into frames and frames into ParsedResponses using a
// static layout table.
type Codec struct {
	layouts map[string]Layout
}

// NewCodec builds a codec over layouts. It panics on an invalid table.
func NewCodec(layouts ...Layout) *Codec {
	c := &Codec{layouts: make(map[string]Layout, len(layouts))}
	for _, l := range layouts {
		if err := validateLayout(l); err != nil {
			panic(err)
		}
		c.layouts[l.Verb] = l
	}
	return c
}

// Layout returns the layout registered for verb.
func (c *Codec) Layout(verb string) (Layout, bool) {
	l, ok := c.layouts[verb]
	return l, ok
}

// Verbs lists registered verbs in sorted order.
func (c *Codec) Verbs() []string {
	verbs := make([]string, 0, len(c.layouts))
	for v := range c.layouts {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// FrameLength is the full frame length, terminator included, of verb in
// variant v with every field present. Alternate set shapes have the same
// length as the primary one.
func (c *Codec) FrameLength(verb string, v Variant) (int, error) {
	shapes, err := c.shapes(verb, v)
	if err != nil {
		return 0, err
	}
	return len(verb) + shapeWidth(shapes[0]) + 1, nil
}

func (c *Codec) shapes(verb string, v Variant) ([][]Field, error) {
	l, ok := c.layouts[verb]
	if !ok {
		return nil, &Error{Kind: ErrUnsupportedCommand, Verb: verb, Detail: "no layout"}
	}
	shapes := l.shapes(v)
	if shapes == nil {
		return nil, &Error{Kind: ErrUnsupportedCommand, Verb: verb, Detail: fmt.Sprintf("no %s variant", v)}
	}
	return shapes, nil
}

// Encode renders cmd as a wire frame.
func (c *Codec) Encode(cmd Command) ([]byte, error) {
	return c.EncodeVariant(cmd.Verb, cmd.variant(), cmd.Params...)
}

// EncodeVariant renders params in verb's shape for variant v. Radios and
// emulators use it with VariantReply.
func (c *Codec) EncodeVariant(verb string, v Variant, params ...Value) ([]byte, error) {
	shapes, err := c.shapes(verb, v)
	if err != nil {
		return nil, err
	}

	var first error
	for _, fields := range shapes {
		frame, err := encodeShape(verb, v, fields, params)
		if err == nil {
			return frame, nil
		}
		// the error of a shape the parameters fit says more than a count mismatch
		if first == nil || (len(shapes) > 1 && takes(fields, len(params)) && !takes(shapes[0], len(params))) {
			first = err
		}
	}
	return nil, first
}

// takes reports whether a shape accepts n parameters.
func takes(fields []Field, n int) bool {
	l := len(fields)
	return n == l || (l > 0 && fields[l-1].Optional && n == l-1)
}

func encodeShape(verb string, v Variant, fields []Field, params []Value) ([]byte, error) {
	n := len(fields)
	if n > 0 && fields[n-1].Optional && len(params) == n-1 {
		fields = fields[:n-1]
	}
	if len(params) != len(fields) {
		return nil, &Error{Kind: ErrMalformedField, Verb: verb,
			Detail: fmt.Sprintf("%s expects %d parameters, got %d", v, len(fields), len(params))}
	}

	var buf bytes.Buffer
	buf.WriteString(verb)
	for i, f := range fields {
		text, err := encodeField(f, params[i])
		if err != nil {
			return nil, fieldError(err, verb, f.Name)
		}
		buf.WriteString(text)
	}
	buf.WriteByte(Terminator)
	return buf.Bytes(), nil
}

// IsRejection reports whether frame is the radio's "?;" refusal.
func IsRejection(frame []byte) bool {
	return len(frame) == 2 && frame[0] == '?' && frame[1] == Terminator
}

// Decode parses frame as verb in variant v. frame must include its
// terminator.
func (c *Codec) Decode(verb string, v Variant, frame []byte) (*ParsedResponse, error) {
	if len(frame) == 0 || frame[len(frame)-1] != Terminator {
		return nil, &Error{Kind: ErrMalformedField, Verb: verb, Detail: fmt.Sprintf("frame %q not terminated", frame)}
	}
	body := string(frame[:len(frame)-1])
	if strings.IndexByte(body, Terminator) >= 0 {
		return nil, &Error{Kind: ErrMalformedField, Verb: verb, Detail: fmt.Sprintf("frame %q has more than one terminator", frame)}
	}
	if IsRejection(frame) {
		return nil, &Error{Kind: ErrRejected, Verb: verb}
	}
	if !strings.HasPrefix(body, verb) {
		got := body
		if len(got) > len(verb) {
			got = got[:len(verb)]
		}
		return nil, &Error{Kind: ErrVerbMismatch, Verb: verb, Detail: fmt.Sprintf("reply is %q", got)}
	}

	shapes, err := c.shapes(verb, v)
	if err != nil {
		return nil, err
	}

	rest := body[len(verb):]
	var first error
	for _, fields := range shapes {
		resp, err := decodeShape(verb, v, fields, rest)
		if err == nil {
			return resp, nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, first
}

func decodeShape(verb string, v Variant, fields []Field, rest string) (*ParsedResponse, error) {
	total := shapeWidth(fields)
	switch {
	case len(rest) == total:
	case len(fields) > 0 && fields[len(fields)-1].Optional && len(rest) == total-fields[len(fields)-1].Width:
		fields = fields[:len(fields)-1]
	default:
		return nil, &Error{Kind: ErrMalformedField, Verb: verb,
			Detail: fmt.Sprintf("%s body is %d characters, want %d", v, len(rest), total)}
	}

	resp := &ParsedResponse{Verb: verb, Fields: make(map[string]Value, len(fields))}
	off := 0
	for _, f := range fields {
		slice := rest[off : off+f.Width]
		off += f.Width
		val, err := decodeField(f, slice)
		if err != nil {
			return nil, fieldError(err, verb, f.Name)
		}
		resp.Fields[f.Name] = val
	}
	return resp, nil
}

func encodeField(f Field, v Value) (string, error) {
	switch f.Kind {
	case Digits:
		return EncodeInteger(v.Int, f.Width)
	case Enum:
		return EncodeEnum(v.Text, f.Table)
	case Text:
		return EncodeText(v.Text, f.Width)
	}
	return "", newError(ErrUnsupportedValue, "unknown field kind %d", f.Kind)
}

func decodeField(f Field, text string) (Value, error) {
	switch f.Kind {
	case Digits:
		n, err := DecodeInteger(text, f.Width)
		return Value{Int: n}, err
	case Enum:
		tag, err := DecodeEnum(text, f.Table)
		if err != nil {
			if KindOf(err) == ErrUnsupportedValue {
				// an unknown code in a reply is a structural failure of the frame
				return Value{}, &Error{Kind: ErrMalformedField, Detail: err.(*Error).Detail}
			}
			return Value{}, err
		}
		return Value{Text: tag}, nil
	case Text:
		s, err := DecodeText(text, f.Width)
		return Value{Text: s}, err
	}
	return Value{}, newError(ErrMalformedField, "unknown field kind %d", f.Kind)
}

func fieldError(err error, verb, field string) error {
	if ce, ok := err.(*Error); ok {
		ce.Verb = verb
		ce.Field = field
		return ce
	}
	return err
}

func shapeWidth(fields []Field) int {
	w := 0
	for _, f := range fields {
		w += f.Width
	}
	return w
}

func validateLayout(l Layout) error {
	if len(l.Verb) != 2 || !isFieldText(l.Verb) {
		return fmt.Errorf("cat: bad verb %q", l.Verb)
	}
	if len(l.AltSets) > 0 && !l.CanSet {
		return fmt.Errorf("cat: %s has alternate set shapes but no set variant", l.Verb)
	}
	for _, alt := range l.AltSets {
		if shapeWidth(alt) != shapeWidth(l.Set) {
			return fmt.Errorf("cat: %s alternate set shape is %d characters, want %d", l.Verb, shapeWidth(alt), shapeWidth(l.Set))
		}
	}
	for _, v := range []Variant{VariantQuery, VariantReply, VariantSet} {
		for _, fields := range l.shapes(v) {
			if err := validateShape(l.Verb, v, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateShape(verb string, v Variant, fields []Field) error {
	seen := map[string]bool{}
	for i, f := range fields {
		if f.Width <= 0 {
			return fmt.Errorf("cat: %s %s field %s has no width", verb, v, f.Name)
		}
		if f.Kind == Enum && (f.Table == nil || f.Table.Width != f.Width) {
			return fmt.Errorf("cat: %s %s field %s has no matching table", verb, v, f.Name)
		}
		if f.Optional && i != len(fields)-1 {
			return fmt.Errorf("cat: %s %s optional field %s is not last", verb, v, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("cat: %s %s field %s declared twice", verb, v, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
