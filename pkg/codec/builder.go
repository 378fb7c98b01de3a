package codec

import (
	"strconv"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of fractional digits AddFloatDefault uses
// unless the builder was configured otherwise.
const DefaultPrecision = 2

// Builder assembles the body of one message as tag=value fields. The
// session layer adds BeginString, BodyLength, the engine managed header
// fields and the CheckSum, so callers only add body fields.
//
// A Builder holds exactly one in-flight message and is not safe for
// concurrent use. Once its buffer has grown to the working size no method
// allocates, with the exception of AddDecimal.
type Builder struct {
	buf              []byte
	defaultPrecision int
	cursor           FieldAppender
}

func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf:              make([]byte, 0, capacity),
		defaultPrecision: DefaultPrecision,
	}
}

func (b *Builder) SetDefaultPrecision(precision int) {
	b.defaultPrecision = precision
}

func (b *Builder) Clear() *Builder {
	b.buf = b.buf[:0]
	return b
}

func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns the assembled fields. The slice aliases the builder and is
// only valid until the next mutation.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Output copies the assembled body into dst at offset and returns the number
// of bytes written.
func (b *Builder) Output(dst []byte, offset int) (int, error) {
	if offset < 0 || len(dst)-offset < len(b.buf) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst[offset:], b.buf), nil
}

func (b *Builder) AddInt(tag int, value int) *Builder {
	return b.AddInt64(tag, int64(value))
}

func (b *Builder) AddInt64(tag int, value int64) *Builder {
	b.appendTag(tag)
	b.buf = strconv.AppendInt(b.buf, value, 10)
	return b.endField()
}

// AddFloat encodes a decimal field with a fixed number of fractional digits,
// rounding the last digit with mode.
func (b *Builder) AddFloat(tag int, value float64, precision int, mode RoundingMode) *Builder {
	b.appendTag(tag)
	b.buf = AppendFloat(b.buf, value, precision, mode)
	return b.endField()
}

func (b *Builder) AddFloatDefault(tag int, value float64) *Builder {
	return b.AddFloat(tag, value, b.defaultPrecision, RoundHalfUp)
}

func (b *Builder) AddDecimal(tag int, value decimal.Decimal) *Builder {
	b.appendTag(tag)
	b.buf = append(b.buf, value.String()...)
	return b.endField()
}

func (b *Builder) AddBool(tag int, value bool) *Builder {
	b.appendTag(tag)
	if value {
		b.buf = append(b.buf, 'Y')
	} else {
		b.buf = append(b.buf, 'N')
	}
	return b.endField()
}

func (b *Builder) AddBytes(tag int, value []byte) *Builder {
	b.appendTag(tag)
	b.buf = append(b.buf, value...)
	return b.endField()
}

func (b *Builder) AddString(tag int, value string) *Builder {
	b.appendTag(tag)
	b.buf = append(b.buf, value...)
	return b.endField()
}

// AddChar encodes a single-character enumerated code such as Side or OrdType.
func (b *Builder) AddChar(tag int, code byte) *Builder {
	b.appendTag(tag)
	b.buf = append(b.buf, code)
	return b.endField()
}

func (b *Builder) AddEnumInt(tag int, code int) *Builder {
	return b.AddInt(tag, code)
}

func (b *Builder) AddEnumString(tag int, code string) *Builder {
	return b.AddString(tag, code)
}

// AddTimestamp encodes a UTCTimestamp with millisecond precision.
func (b *Builder) AddTimestamp(tag int, value time.Time) *Builder {
	b.appendTag(tag)
	b.buf = AppendTimestamp(b.buf, value)
	return b.endField()
}

// AddTimeOnly encodes the UTC time of day of value.
func (b *Builder) AddTimeOnly(tag int, value time.Time) *Builder {
	b.appendTag(tag)
	b.buf = AppendTimeOnly(b.buf, value)
	return b.endField()
}

// AddDateOnly encodes the UTC date of value.
func (b *Builder) AddDateOnly(tag int, value time.Time) *Builder {
	b.appendTag(tag)
	b.buf = AppendDateOnly(b.buf, value)
	return b.endField()
}

// AddRaw appends fields that are already encoded, including their trailing
// SOH.
func (b *Builder) AddRaw(fields []byte) *Builder {
	b.buf = append(b.buf, fields...)
	return b
}

// Field starts a field whose value is assembled piecewise. The returned
// cursor belongs to the builder; End must be called before any other field
// is added.
func (b *Builder) Field(tag int) *FieldAppender {
	b.appendTag(tag)
	b.cursor.b = b
	return &b.cursor
}

func (b *Builder) appendTag(tag int) {
	b.buf = strconv.AppendInt(b.buf, int64(tag), 10)
	b.buf = append(b.buf, '=')
}

func (b *Builder) endField() *Builder {
	b.buf = append(b.buf, utils.SOH)
	return b
}

// FieldAppender appends to the value of the field opened by Builder.Field.
type FieldAppender struct {
	b *Builder
}

func (a *FieldAppender) AppendString(s string) *FieldAppender {
	a.b.buf = append(a.b.buf, s...)
	return a
}

func (a *FieldAppender) AppendBytes(p []byte) *FieldAppender {
	a.b.buf = append(a.b.buf, p...)
	return a
}

func (a *FieldAppender) AppendByte(c byte) *FieldAppender {
	a.b.buf = append(a.b.buf, c)
	return a
}

func (a *FieldAppender) AppendInt(v int64) *FieldAppender {
	a.b.buf = strconv.AppendInt(a.b.buf, v, 10)
	return a
}

// End terminates the field with SOH and hands back the builder.
func (a *FieldAppender) End() *Builder {
	b := a.b
	a.b = nil
	return b.endField()
}
