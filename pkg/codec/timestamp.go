package codec

import "time"

// Wire layouts, for reference: UTCTimestamp "20060102-15:04:05.000",
// UTCTimeOnly "15:04:05.000", UTCDateOnly "20060102". The encoders below
// write them digit by digit to stay allocation free.

func AppendTimestamp(dst []byte, t time.Time) []byte {
	t = t.UTC()
	dst = AppendDateOnly(dst, t)
	dst = append(dst, '-')
	return AppendTimeOnly(dst, t)
}

func AppendTimeOnly(dst []byte, t time.Time) []byte {
	t = t.UTC()
	hour, min, sec := t.Clock()
	dst = appendDigits(dst, hour, 2)
	dst = append(dst, ':')
	dst = appendDigits(dst, min, 2)
	dst = append(dst, ':')
	dst = appendDigits(dst, sec, 2)
	dst = append(dst, '.')
	return appendDigits(dst, t.Nanosecond()/int(time.Millisecond), 3)
}

func AppendDateOnly(dst []byte, t time.Time) []byte {
	t = t.UTC()
	year, month, day := t.Date()
	dst = appendDigits(dst, year, 4)
	dst = appendDigits(dst, int(month), 2)
	return appendDigits(dst, day, 2)
}

func appendDigits(dst []byte, v int, width int) []byte {
	for div := pow10i[width-1]; div > 0; div /= 10 {
		dst = append(dst, byte('0'+(int64(v)/div)%10))
	}
	return dst
}

func parseTimestamp(tag int, v []byte) (time.Time, error) {
	if len(v) < 17 || v[8] != '-' {
		return time.Time{}, formatError(tag, "UTCTimestamp", v)
	}
	date, ok := decodeDate(v[:8])
	if !ok {
		return time.Time{}, formatError(tag, "UTCTimestamp", v)
	}
	offset, ok := decodeTimeOfDay(v[9:])
	if !ok {
		return time.Time{}, formatError(tag, "UTCTimestamp", v)
	}
	return date.Add(offset), nil
}

func parseTimeOnly(tag int, v []byte) (time.Duration, error) {
	offset, ok := decodeTimeOfDay(v)
	if !ok {
		return 0, formatError(tag, "UTCTimeOnly", v)
	}
	return offset, nil
}

func parseDateOnly(tag int, v []byte) (time.Time, error) {
	if len(v) != 8 {
		return time.Time{}, formatError(tag, "UTCDateOnly", v)
	}
	date, ok := decodeDate(v)
	if !ok {
		return time.Time{}, formatError(tag, "UTCDateOnly", v)
	}
	return date, nil
}

func decodeDate(v []byte) (time.Time, bool) {
	year, ok1 := decodeDigits(v[0:4])
	month, ok2 := decodeDigits(v[4:6])
	day, ok3 := decodeDigits(v[6:8])
	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// decodeTimeOfDay accepts HH:MM:SS with an optional fraction of 1 to 9 digits.
func decodeTimeOfDay(v []byte) (time.Duration, bool) {
	if len(v) < 8 || v[2] != ':' || v[5] != ':' {
		return 0, false
	}
	hour, ok1 := decodeDigits(v[0:2])
	min, ok2 := decodeDigits(v[3:5])
	sec, ok3 := decodeDigits(v[6:8])
	if !ok1 || !ok2 || !ok3 || hour > 23 || min > 59 || sec > 60 {
		return 0, false
	}
	offset := time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second

	if len(v) == 8 {
		return offset, true
	}
	frac := v[9:]
	if v[8] != '.' || len(frac) == 0 || len(frac) > 9 {
		return 0, false
	}
	n, ok := decodeDigits(frac)
	if !ok {
		return 0, false
	}
	for i := len(frac); i < 9; i++ {
		n *= 10
	}
	return offset + time.Duration(n), true
}

// maxDigits bounds decoded numbers so they cannot overflow an int.
const maxDigits = 9

func decodeDigits(v []byte) (int, bool) {
	if len(v) > maxDigits {
		return 0, false
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
