package eventlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errPHPSyntax = errors.New("eventlog: malformed serialized value")

// phpEntry is one key/value pair of a serialized array or object. Keys are
// int64 or string.
type phpEntry struct {
	key   any
	value any
}

type phpArray []phpEntry

// sequential reports whether the keys are exactly 0..n-1 in order.
func (a phpArray) sequential() bool {
	for i, e := range a {
		k, ok := e.key.(int64)
		if !ok || k != int64(i) {
			return false
		}
	}
	return true
}

// looksPHPSerialized is a cheap shape check before a full parse.
func looksPHPSerialized(s string) bool {
	if s == "N;" {
		return true
	}
	if len(s) < 4 || s[1] != ':' || !strings.ContainsRune("abidsO", rune(s[0])) {
		return false
	}
	last := s[len(s)-1]
	return last == ';' || last == '}'
}

// unserializePHP decodes the serialize() format WordPress uses for meta and
// option values. Arrays and objects decode to phpArray.
func unserializePHP(s string) (any, error) {
	d := &phpDecoder{data: s}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("%w: trailing data at offset %d", errPHPSyntax, d.pos)
	}
	return v, nil
}

type phpDecoder struct {
	data string
	pos  int
}

func (d *phpDecoder) fail(what string) error {
	return fmt.Errorf("%w: %s at offset %d", errPHPSyntax, what, d.pos)
}

func (d *phpDecoder) expect(lit string) error {
	if !strings.HasPrefix(d.data[d.pos:], lit) {
		return d.fail("expected " + strconv.Quote(lit))
	}
	d.pos += len(lit)
	return nil
}

// until returns the text up to sep and moves past sep.
func (d *phpDecoder) until(sep byte) (string, error) {
	i := strings.IndexByte(d.data[d.pos:], sep)
	if i < 0 {
		return "", d.fail("unterminated token")
	}
	tok := d.data[d.pos : d.pos+i]
	d.pos += i + 1
	return tok, nil
}

func (d *phpDecoder) count(sep byte) (int, error) {
	tok, err := d.until(sep)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, d.fail("bad length")
	}
	return n, nil
}

func (d *phpDecoder) value() (any, error) {
	if d.pos >= len(d.data) {
		return nil, d.fail("unexpected end")
	}
	tag := d.data[d.pos]
	if tag == 'N' {
		return nil, d.expect("N;")
	}
	if d.pos+1 >= len(d.data) || d.data[d.pos+1] != ':' {
		return nil, d.fail("expected type prefix")
	}
	d.pos += 2

	switch tag {
	case 'b':
		tok, err := d.until(';')
		if err != nil {
			return nil, err
		}
		switch tok {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, d.fail("bad boolean")
	case 'i':
		tok, err := d.until(';')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, d.fail("bad integer")
		}
		return n, nil
	case 'd':
		tok, err := d.until(';')
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, d.fail("bad float")
		}
		return f, nil
	case 's':
		str, err := d.str()
		if err != nil {
			return nil, err
		}
		return str, d.expect(";")
	case 'a':
		n, err := d.count(':')
		if err != nil {
			return nil, err
		}
		return d.entries(n)
	case 'O':
		// O:<len>:"<class>":<n>:{...}; the class name is dropped.
		if _, err := d.str(); err != nil {
			return nil, err
		}
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		n, err := d.count(':')
		if err != nil {
			return nil, err
		}
		return d.entries(n)
	}
	return nil, d.fail("unknown type " + strconv.QuoteRune(rune(tag)))
}

// str reads <len>:"<bytes>" without the trailing terminator.
func (d *phpDecoder) str() (string, error) {
	n, err := d.count(':')
	if err != nil {
		return "", err
	}
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	if n > len(d.data)-d.pos {
		return "", d.fail("string overruns input")
	}
	s := d.data[d.pos : d.pos+n]
	d.pos += n
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	return s, nil
}

func (d *phpDecoder) entries(n int) (phpArray, error) {
	if err := d.expect("{"); err != nil {
		return nil, err
	}
	// Every entry takes at least four bytes ("i:0;"), so the declared count
	// cannot pre-allocate past what the input could hold.
	out := make(phpArray, 0, min(n, (len(d.data)-d.pos)/4))
	for i := 0; i < n; i++ {
		key, err := d.value()
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case int64, string:
		default:
			return nil, d.fail("array key must be int or string")
		}
		val, err := d.value()
		if err != nil {
			return nil, err
		}
		out = append(out, phpEntry{key: key, value: val})
	}
	if err := d.expect("}"); err != nil {
		return nil, err
	}
	return out, nil
}
