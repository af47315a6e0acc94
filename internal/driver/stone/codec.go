package stone

// EncodeBCD packs a value in 0..99 into one byte, tens in the high nibble and
// ones in the low nibble. Values above 99 are not checked.
func EncodeBCD(v byte) byte {
	tens := v / 10
	ones := v - 10*tens
	return (tens&0x0F)<<4 | ones&0x0F
}

// DecodeBCD is the inverse of EncodeBCD.
func DecodeBCD(b byte) byte {
	return b&0x0F + 10*(b>>4)
}

// PackWord composes a big-endian 16-bit word.
func PackWord(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// UnpackWord splits a 16-bit word into its big-endian bytes.
func UnpackWord(w uint16) (hi, lo byte) {
	return byte(w >> 8), byte(w)
}
