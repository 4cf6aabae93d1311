package officecrypt

import (
	"encoding/binary"
	"io"
)

const (
	fibFlagsOffset   = 0x0A
	fibEncrypted     = 0x0100
	recordFilePass   = 0x002F
	recordEOF        = 0x000A
	maxRecordsToRead = 4096
)

// wordEncrypted reads the fEncrypted bit of the Word FIB
func wordEncrypted(r io.Reader) bool {
	fib := make([]byte, fibFlagsOffset+2)
	if _, err := io.ReadFull(r, fib); err != nil {
		return false
	}
	return binary.LittleEndian.Uint16(fib[fibFlagsOffset:])&fibEncrypted != 0
}

// workbookHasFilePass scans the workbook globals for a FILEPASS record
func workbookHasFilePass(r io.Reader) bool {
	header := make([]byte, 4)
	for i := 0; i < maxRecordsToRead; i++ {
		if _, err := io.ReadFull(r, header); err != nil {
			return false
		}
		typ := binary.LittleEndian.Uint16(header[0:2])
		size := int64(binary.LittleEndian.Uint16(header[2:4]))
		switch typ {
		case recordFilePass:
			return true
		case recordEOF:
			return false
		}
		if _, err := io.CopyN(io.Discard, r, size); err != nil {
			return false
		}
	}
	return false
}
