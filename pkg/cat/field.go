package cat

import (
	"fmt"
	"strconv"
)

// Terminator ends every CAT frame.
const Terminator = ';'

// EnumTable maps logical tags to fixed-width protocol codes for one kind of
// field.
type EnumTable struct {
	Name   string
	Width  int
	byTag  map[string]string
	byCode map[string]string
	tags   []string
}

// NewEnumTable builds a table from alternating tag, code pairs. It panics
// on malformed tables since they are static program data.
func NewEnumTable(name string, width int, pairs ...string) *EnumTable {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("cat: enum table %s: odd number of entries", name))
	}
	t := &EnumTable{
		Name:   name,
		Width:  width,
		byTag:  make(map[string]string, len(pairs)/2),
		byCode: make(map[string]string, len(pairs)/2),
	}
	for i := 0; i < len(pairs); i += 2 {
		tag, code := pairs[i], pairs[i+1]
		if len(code) != width || !isFieldText(code) {
			panic(fmt.Sprintf("cat: enum table %s: bad code %q", name, code))
		}
		if _, dup := t.byCode[code]; dup {
			panic(fmt.Sprintf("cat: enum table %s: duplicate code %q", name, code))
		}
		t.byTag[tag] = code
		t.byCode[code] = tag
		t.tags = append(t.tags, tag)
	}
	return t
}

// Tags lists the table's tags in declaration order.
func (t *EnumTable) Tags() []string {
	return append([]string(nil), t.tags...)
}

// Has reports whether tag is known to the table.
func (t *EnumTable) Has(tag string) bool {
	_, ok := t.byTag[tag]
	return ok
}

// EncodeInteger renders value as exactly width zero-padded decimal digits.
func EncodeInteger(value, width int) (string, error) {
	if value < 0 {
		return "", newError(ErrValueOutOfRange, "%d is negative", value)
	}
	s := strconv.Itoa(value)
	if len(s) > width {
		return "", newError(ErrValueOutOfRange, "%d does not fit in %d digits", value, width)
	}
	return fmt.Sprintf("%0*d", width, value), nil
}

// DecodeInteger parses a fixed-width digit string.
func DecodeInteger(text string, width int) (int, error) {
	if len(text) != width {
		return 0, newError(ErrMalformedField, "expected %d digits, got %q", width, text)
	}
	n := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < '0' || c > '9' {
			return 0, newError(ErrMalformedField, "non-digit %q in %q", c, text)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// EncodeEnum returns the protocol code for tag.
func EncodeEnum(tag string, table *EnumTable) (string, error) {
	code, ok := table.byTag[tag]
	if !ok {
		return "", newError(ErrUnsupportedValue, "unknown %s %q", table.Name, tag)
	}
	return code, nil
}

// DecodeEnum returns the tag for a protocol code.
func DecodeEnum(text string, table *EnumTable) (string, error) {
	if len(text) != table.Width {
		return "", newError(ErrMalformedField, "expected %d-character %s code, got %q", table.Width, table.Name, text)
	}
	tag, ok := table.byCode[text]
	if !ok {
		return "", newError(ErrUnsupportedValue, "unknown %s code %q", table.Name, text)
	}
	return tag, nil
}

// EncodeText checks a raw text field: exact width, printable ASCII and no
// terminator.
func EncodeText(text string, width int) (string, error) {
	if len(text) != width {
		return "", newError(ErrValueOutOfRange, "expected %d characters, got %q", width, text)
	}
	if !isFieldText(text) {
		return "", newError(ErrUnsupportedValue, "%q contains characters not allowed in a frame", text)
	}
	return text, nil
}

// DecodeText validates a raw text field and returns it unchanged.
func DecodeText(text string, width int) (string, error) {
	if len(text) != width || !isFieldText(text) {
		return "", newError(ErrMalformedField, "expected %d printable characters, got %q", width, text)
	}
	return text, nil
}

// PowerWidth is the number of digits in a PC wattage field.
const PowerWidth = 3

// EncodePower validates watts against the range of unit and returns the
// unit code and the zero-padded wattage digits.
func EncodePower(watts int, unit PowerUnit) (unitCode, digits string, err error) {
	r, ok := RangeFor(unit)
	if !ok {
		return "", "", newError(ErrUnsupportedValue, "unknown power unit %q", unit)
	}
	if watts < r.Min || watts > r.Max {
		return "", "", newError(ErrValueOutOfRange, "%d W outside %d-%d W for %s", watts, r.Min, r.Max, unit)
	}
	unitCode, err = EncodeEnum(string(unit), PowerUnitTable)
	if err != nil {
		return "", "", err
	}
	digits, err = EncodeInteger(watts, PowerWidth)
	if err != nil {
		return "", "", err
	}
	return unitCode, digits, nil
}

func isFieldText(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == Terminator {
			return false
		}
	}
	return true
}
