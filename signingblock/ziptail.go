package signingblock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// https://en.wikipedia.org/wiki/Zip_(file_format)#End_of_central_directory_record_(EOCD)

const (
	eocdRecMinSize             = 22
	eocdRecMagic               = 0x06054b50
	eocdCommentSizeOffset      = 20
	eocdCentralDirSizeOffset   = 12
	eocdCentralDirOffsetOffset = 16

	zip64LocatorSize  = 20
	zip64LocatorMagic = 0x07064b50
)

var ErrEocdNotFound = errors.New("EOCD record not found")

// zipTail describes the trailing structures of the archive: the EOCD record
// (including its comment) and the central directory range it points to.
type zipTail struct {
	eocdOffset       int64
	centralDirOffset int64
	centralDirSize   int64
	eocd             []byte // aliases the source buffer, do not modify
}

func findZipTail(apk []byte) (*zipTail, error) {
	if int64(len(apk)) < eocdRecMinSize {
		return nil, fmt.Errorf("APK file is too short (%d bytes): %w", len(apk), ErrEocdNotFound)
	}

	t, err := findZipTailMaxCommentSize(apk, 0)
	if err != nil {
		// EOCD does not sit at the very end, the record likely carries a comment.
		t, err = findZipTailMaxCommentSize(apk, math.MaxUint16)
	}
	if err != nil {
		return nil, err
	}

	if isZip64(apk, t.eocdOffset) {
		return nil, errors.New("ZIP64 APK not supported")
	}
	return t, nil
}

// findZipTailMaxCommentSize scans backwards for the EOCD magic. A candidate is
// accepted only if its declared comment length exactly reaches the end of the
// buffer, which disambiguates magic-like byte sequences inside the comment.
func findZipTailMaxCommentSize(apk []byte, maxCommentSize int) (*zipTail, error) {
	fileSize := int64(len(apk))
	if maxCommentSize > int(fileSize-eocdRecMinSize) {
		maxCommentSize = int(fileSize - eocdRecMinSize)
	}
	if maxCommentSize > math.MaxUint16 {
		maxCommentSize = math.MaxUint16
	}

	emptyCommentStart := fileSize - eocdRecMinSize

	for commentSize := 0; commentSize <= maxCommentSize; commentSize++ {
		pos := emptyCommentStart - int64(commentSize)
		if binary.LittleEndian.Uint32(apk[pos:pos+4]) != eocdRecMagic {
			continue
		}

		recordCommentSize := binary.LittleEndian.Uint16(apk[pos+eocdCommentSizeOffset:])
		if int(recordCommentSize) != commentSize {
			continue
		}

		t := &zipTail{
			eocdOffset:       pos,
			centralDirOffset: int64(binary.LittleEndian.Uint32(apk[pos+eocdCentralDirOffsetOffset:])),
			centralDirSize:   int64(binary.LittleEndian.Uint32(apk[pos+eocdCentralDirSizeOffset:])),
			eocd:             apk[pos:],
		}

		if t.centralDirOffset >= t.eocdOffset {
			return nil, fmt.Errorf("ZIP Central Directory offset out of range: %d. Zip End of Central Directory offset: %d",
				t.centralDirOffset, t.eocdOffset)
		}

		if t.centralDirOffset+t.centralDirSize != t.eocdOffset {
			return nil, errors.New("ZIP Central Directory is not immediately followed by End of Central Directory")
		}
		return t, nil
	}
	return nil, ErrEocdNotFound
}

func isZip64(apk []byte, eocdOffset int64) bool {
	locatorPos := eocdOffset - zip64LocatorSize
	if locatorPos < 0 {
		return false
	}
	return binary.LittleEndian.Uint32(apk[locatorPos:]) == zip64LocatorMagic
}
