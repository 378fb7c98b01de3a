package codec

import (
	"bytes"
	"math"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// View is a field value borrowed from the buffer being parsed. It stays
// valid only until the parser moves on with Next or Reset, or the underlying
// buffer is reused; copy it to keep it.
type View []byte

func (v View) String() string {
	return string(v)
}

// Equal compares against s without allocating.
func (v View) Equal(s string) bool {
	return string(v) == s
}

// Parser walks the tag=value fields of a raw message. It never copies the
// input and never allocates on success.
type Parser struct {
	buf   []byte
	pos   int
	start int
	tag   int
	value View
	err   error
}

func NewParser(buf []byte) *Parser {
	p := &Parser{}
	p.Reset(buf)
	return p
}

func (p *Parser) Reset(buf []byte) {
	p.buf = buf
	p.pos = 0
	p.start = 0
	p.tag = 0
	p.value = nil
	p.err = nil
}

// Next advances to the following field. It returns false at the end of the
// message or on a framing error, in which case Err is set.
func (p *Parser) Next() bool {
	p.tag = 0
	p.value = nil
	if p.err != nil || p.pos >= len(p.buf) {
		return false
	}

	buf := p.buf
	p.start = p.pos
	i := p.pos
	tag := 0
	for ; i < len(buf) && buf[i] != '='; i++ {
		c := buf[i]
		if c < '0' || c > '9' || i-p.pos >= maxDigits {
			if c == utils.SOH {
				p.err = ErrMissingEquals
			} else {
				p.err = ErrMalformedTag
			}
			return false
		}
		tag = tag*10 + int(c-'0')
	}
	if i == len(buf) {
		p.err = ErrMissingEquals
		return false
	}
	if tag == 0 {
		p.err = ErrMissingTag
		return false
	}

	valueStart := i + 1
	n := bytes.IndexByte(buf[valueStart:], utils.SOH)
	if n < 0 {
		p.err = ErrMissingSOH
		return false
	}
	if n == 0 {
		p.err = ErrEmptyValue
		return false
	}

	p.tag = tag
	p.value = View(buf[valueStart : valueStart+n])
	p.pos = valueStart + n + 1
	return true
}

func (p *Parser) Err() error {
	return p.err
}

func (p *Parser) Tag() int {
	return p.tag
}

func (p *Parser) Value() View {
	return p.value
}

// Offset is the position of the current field's first byte in the buffer.
func (p *Parser) Offset() int {
	return p.start
}

// End is the position just past the current field's SOH.
func (p *Parser) End() int {
	return p.pos
}

func (p *Parser) Int() (int, error) {
	v, err := p.Int64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt || v < math.MinInt {
		return 0, formatError(p.tag, "int", p.value)
	}
	return int(v), nil
}

func (p *Parser) Int64() (int64, error) {
	v := p.value
	if len(v) == 0 {
		return 0, formatError(p.tag, "int", v)
	}
	neg := v[0] == '-'
	if neg {
		v = v[1:]
		if len(v) == 0 {
			return 0, formatError(p.tag, "int", p.value)
		}
	}
	if len(v) > 19 {
		return 0, formatError(p.tag, "int", p.value)
	}
	var n uint64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, formatError(p.tag, "int", p.value)
		}
		n = n*10 + uint64(c-'0')
	}
	if neg {
		if n > math.MaxInt64+1 {
			return 0, formatError(p.tag, "int", p.value)
		}
		return -int64(n), nil
	}
	if n > math.MaxInt64 {
		return 0, formatError(p.tag, "int", p.value)
	}
	return int64(n), nil
}

// Float decodes a decimal field. Precision beyond what a float64 holds is
// lost; use Decimal when exactness matters.
func (p *Parser) Float() (float64, error) {
	return parseFloat(p.tag, p.value)
}

func (p *Parser) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(p.value))
	if err != nil {
		return decimal.Decimal{}, formatError(p.tag, "decimal", p.value)
	}
	return d, nil
}

func (p *Parser) Bool() (bool, error) {
	if len(p.value) == 1 {
		switch p.value[0] {
		case 'Y':
			return true, nil
		case 'N':
			return false, nil
		}
	}
	return false, formatError(p.tag, "boolean", p.value)
}

func (p *Parser) Char() (byte, error) {
	if len(p.value) != 1 {
		return 0, formatError(p.tag, "char", p.value)
	}
	return p.value[0], nil
}

func (p *Parser) Timestamp() (time.Time, error) {
	return parseTimestamp(p.tag, p.value)
}

// TimeOnly returns the decoded time of day as an offset from midnight UTC.
func (p *Parser) TimeOnly() (time.Duration, error) {
	return parseTimeOnly(p.tag, p.value)
}

func (p *Parser) DateOnly() (time.Time, error) {
	return parseDateOnly(p.tag, p.value)
}
