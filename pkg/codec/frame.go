package codec

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
)

// trailerLen is the size of "10=nnn<SOH>".
const trailerLen = 7

// AppendFrame wraps body, which must end with SOH, in a complete frame:
// BeginString and BodyLength in front, CheckSum behind.
func AppendFrame(dst []byte, beginString string, body []byte) []byte {
	start := len(dst)
	dst = append(dst, '8', '=')
	dst = append(dst, beginString...)
	dst = append(dst, utils.SOH, '9', '=')
	dst = strconv.AppendInt(dst, int64(len(body)), 10)
	dst = append(dst, utils.SOH)
	dst = append(dst, body...)
	checksum := utils.Checksum(dst[start:])
	dst = append(dst, '1', '0', '=')
	dst = utils.AppendChecksum(dst, checksum)
	return append(dst, utils.SOH)
}

// BodyBounds returns the offsets of the body of a complete frame: the first
// byte after BodyLength and the first byte of the CheckSum field.
func BodyBounds(frame []byte) (int, int, error) {
	first := bytes.IndexByte(frame, utils.SOH)
	if first < 0 || len(frame) < first+trailerLen {
		return 0, 0, ErrGarbled
	}
	second := bytes.IndexByte(frame[first+1:], utils.SOH)
	if second < 0 {
		return 0, 0, ErrGarbled
	}
	start := first + 1 + second + 1
	end := len(frame) - trailerLen
	if end < start {
		return 0, 0, ErrGarbled
	}
	return start, end, nil
}

// FrameReader splits a byte stream into complete, checksum validated frames.
// The slice returned by ReadFrame aliases the reader's buffer and is valid
// until the next call.
type FrameReader struct {
	r        io.Reader
	buf      []byte
	head     int
	tail     int
	consumed int
	max      int
}

func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	initial := 4096
	if maxFrameSize < initial {
		initial = maxFrameSize
	}
	return &FrameReader{
		r:   r,
		buf: make([]byte, initial),
		max: maxFrameSize,
	}
}

func (fr *FrameReader) ReadFrame() ([]byte, error) {
	fr.head += fr.consumed
	fr.consumed = 0
	for {
		n, err := fr.frameLength()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			frame := fr.buf[fr.head : fr.head+n]
			if err := validateTrailer(frame); err != nil {
				return nil, err
			}
			fr.consumed = n
			return frame, nil
		}
		if err := fr.fill(); err != nil {
			return nil, err
		}
	}
}

// frameLength returns the total length of the frame at the head of the
// buffer, or 0 when more bytes are needed to know it.
func (fr *FrameReader) frameLength() (int, error) {
	data := fr.buf[fr.head:fr.tail]
	if len(data) < 2 {
		return 0, nil
	}
	if data[0] != '8' || data[1] != '=' {
		return 0, ErrGarbled
	}
	first := bytes.IndexByte(data, utils.SOH)
	if first < 0 {
		if len(data) > 32 {
			return 0, ErrGarbled
		}
		return 0, nil
	}
	rest := data[first+1:]
	if len(rest) < 2 {
		return 0, nil
	}
	if rest[0] != '9' || rest[1] != '=' {
		return 0, ErrGarbled
	}
	second := bytes.IndexByte(rest, utils.SOH)
	if second < 0 {
		if len(rest) > 12 {
			return 0, ErrGarbled
		}
		return 0, nil
	}
	bodyLength, ok := decodeDigits(rest[2:second])
	if !ok || second == 2 {
		return 0, ErrBadBodyLength
	}

	total := first + 1 + second + 1 + bodyLength + trailerLen
	if total < first+1+second+1+trailerLen {
		return 0, ErrBadBodyLength
	}
	if total > fr.max {
		return 0, ErrFrameTooLarge
	}
	if len(data) < total {
		return 0, nil
	}
	return total, nil
}

func validateTrailer(frame []byte) error {
	if len(frame) < trailerLen {
		return ErrBadBodyLength
	}
	trailer := frame[len(frame)-trailerLen:]
	if trailer[0] != '1' || trailer[1] != '0' || trailer[2] != '=' || trailer[6] != utils.SOH {
		return ErrBadBodyLength
	}
	declared, ok := decodeDigits(trailer[3:6])
	if !ok {
		return ErrBadChecksum
	}
	if declared != utils.Checksum(frame[:len(frame)-trailerLen]) {
		return ErrBadChecksum
	}
	return nil
}

func (fr *FrameReader) fill() error {
	if fr.head > 0 {
		copy(fr.buf, fr.buf[fr.head:fr.tail])
		fr.tail -= fr.head
		fr.head = 0
	}
	if fr.tail == len(fr.buf) {
		if len(fr.buf) >= fr.max {
			return ErrFrameTooLarge
		}
		size := len(fr.buf) * 2
		if size > fr.max {
			size = fr.max
		}
		grown := make([]byte, size)
		copy(grown, fr.buf[:fr.tail])
		fr.buf = grown
	}

	n, err := fr.r.Read(fr.buf[fr.tail:])
	fr.tail += n
	if n > 0 {
		return nil
	}
	if err == nil {
		return io.ErrNoProgress
	}
	if errors.Is(err, io.EOF) && fr.tail > fr.head {
		return io.ErrUnexpectedEOF
	}
	return err
}
