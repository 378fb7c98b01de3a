package utils

// Checksum returns the FIX trailer checksum: the byte sum of buf modulo 256.
func Checksum(buf []byte) int {
	sum := 0
	for _, b := range buf {
		sum += int(b)
	}
	return sum & 0xff
}

// AppendChecksum appends a checksum as the three zero-padded digits the
// CheckSum field requires.
func AppendChecksum(dst []byte, checksum int) []byte {
	return append(dst,
		byte('0'+checksum/100),
		byte('0'+(checksum/10)%10),
		byte('0'+checksum%10),
	)
}
