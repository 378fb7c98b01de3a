package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parser_walks_fields_in_order(t *testing.T) {
	p := NewParser([]byte("35=D\x0111=abc\x0138=100\x01"))

	var tags []int
	var values []string
	for p.Next() {
		tags = append(tags, p.Tag())
		values = append(values, p.Value().String())
	}
	require.NoError(t, p.Err())
	assert.Equal(t, []int{35, 11, 38}, tags)
	assert.Equal(t, []string{"D", "abc", "100"}, values)
}

func Test_parser_reports_framing_errors(t *testing.T) {
	cases := map[string]error{
		"0=x\x01":      ErrMissingTag,
		"=x\x01":       ErrMissingTag,
		"35=\x01":      ErrEmptyValue,
		"35=D":         ErrMissingSOH,
		"35=D\x0111=a": ErrMissingSOH,
		"35D\x01":      ErrMalformedTag,
		"35":           ErrMissingEquals,
		"3x=1\x01":     ErrMalformedTag,
		// Would wrap to tag 35 if accumulated without a bound.
		"18446744073709551651=D\x01": ErrMalformedTag,
		"1234567890=x\x01":           ErrMalformedTag,
	}
	for in, want := range cases {
		p := NewParser([]byte(in))
		for p.Next() {
		}
		assert.ErrorIs(t, p.Err(), want, "%q", in)
	}
}

func Test_parser_typed_accessors_return_format_errors(t *testing.T) {
	p := NewParser([]byte("34=12a\x0143=X\x0152=2024-01-01\x01273=25:00:00\x0175=20240231\x0144=1,5\x01"))

	require.True(t, p.Next())
	_, err := p.Int()
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, 34, formatErr.Tag)

	require.True(t, p.Next())
	_, err = p.Bool()
	assert.ErrorIs(t, err, ErrFormat)

	require.True(t, p.Next())
	_, err = p.Timestamp()
	assert.ErrorIs(t, err, ErrFormat)

	require.True(t, p.Next())
	_, err = p.TimeOnly()
	assert.ErrorIs(t, err, ErrFormat)

	require.True(t, p.Next())
	_, err = p.DateOnly()
	assert.ErrorIs(t, err, ErrFormat)

	require.True(t, p.Next())
	_, err = p.Float()
	assert.ErrorIs(t, err, ErrFormat)
}

func Test_parser_int_bounds(t *testing.T) {
	p := NewParser([]byte("1=9223372036854775807\x012=-9223372036854775808\x013=9223372036854775808\x014=99999999999999999999\x01"))

	require.True(t, p.Next())
	v, err := p.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), v)

	require.True(t, p.Next())
	v, err = p.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), v)

	require.True(t, p.Next())
	_, err = p.Int64()
	assert.ErrorIs(t, err, ErrFormat)

	require.True(t, p.Next())
	_, err = p.Int64()
	assert.ErrorIs(t, err, ErrFormat)
}

func Test_parser_timestamps_accept_optional_fractions(t *testing.T) {
	p := NewParser([]byte("52=20240307-13:45:12\x0152=20240307-13:45:12.123456\x01"))

	require.True(t, p.Next())
	ts, err := p.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, 0, ts.Nanosecond())

	require.True(t, p.Next())
	ts, err = p.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, 123456000, ts.Nanosecond())
}

func Test_parser_offsets_track_field_boundaries(t *testing.T) {
	buf := []byte("35=D\x0155=X\x01")
	p := NewParser(buf)
	require.True(t, p.Next())
	require.True(t, p.Next())
	assert.Equal(t, 5, p.Offset())
	assert.Equal(t, len(buf), p.End())
}

func Test_parser_does_not_allocate(t *testing.T) {
	buf := []byte("35=D\x0134=12\x0144=1.43\x0143=Y\x0152=20240307-13:45:12.345\x01")
	p := NewParser(nil)
	allocs := testing.AllocsPerRun(100, func() {
		p.Reset(buf)
		for p.Next() {
			switch p.Tag() {
			case 34:
				_, _ = p.Int()
			case 44:
				_, _ = p.Float()
			case 43:
				_, _ = p.Bool()
			case 52:
				_, _ = p.Timestamp()
			}
		}
	})
	assert.Zero(t, allocs)
}
