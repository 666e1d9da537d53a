package signingblock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// https://source.android.com/security/apksigning/v2.html
//
// The APK Signing Block sits immediately before the ZIP Central Directory:
//
//	uint64:  size of block (excluding this field)
//	repeated ID-value pairs:
//	    uint64:           pair length (id + value)
//	    uint32:           id
//	    (length-4) bytes: value
//	uint64:  size of block (same as above)
//	uint128: magic "APK Sig Block 42"

const (
	apkSigBlockMinSize = 32
	apkSigBlockMagicHi = 0x3234206b636f6c42
	apkSigBlockMagicLo = 0x20676953204b5041

	blockIdVerityPadding = 0x42726577
	blockIdSchemeV2      = 0x7109871a
	blockIdSchemeV3      = 0xf05368c0
	blockIdSchemeV31     = 0x1b93ad61
	blockIdSourceStamp   = 0x6dff800d
)

var (
	ErrBadMagic      = errors.New("APK Signing Block magic is invalid")
	ErrSizeMismatch  = errors.New("APK Signing Block sizes in header and footer do not match")
	ErrTruncatedPair = errors.New("truncated APK Signing Block entry")
)

// NotFoundError signals that the file has no valid APK Signing Block before
// its Central Directory, i.e. it is not signed with scheme v2 or newer.
type NotFoundError struct {
	err error
}

func (e *NotFoundError) Error() string {
	return "APK Signing Block not found: " + e.err.Error()
}

func (e *NotFoundError) Unwrap() error {
	return e.err
}

func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Pair is a single ID-value entry of the signing block. The value aliases
// the buffer the block was parsed from.
type Pair struct {
	ID    uint32
	Value []byte
}

// Block is the decoded APK Signing Block. Pairs keep the exact order they
// were read in, verifiers may be order-sensitive.
type Block struct {
	Pairs []Pair

	byId map[uint32]int
}

// Apk is a fully loaded APK with its signing block decoded. The byte buffer
// is never modified, rewrites produce new buffers.
type Apk struct {
	data       []byte
	tail       *zipTail
	blockStart int64 // offset of the leading size field
	Block      *Block
}

// Parse locates the ZIP tail of apk and decodes the signing block lying
// immediately before the Central Directory. A missing or unrecognizable
// block is reported as *NotFoundError, a structurally broken one as a
// plain error.
func Parse(apk []byte) (*Apk, error) {
	tail, err := findZipTail(apk)
	if err != nil {
		return nil, &NotFoundError{err}
	}

	raw, blockStart, err := findBlockBytes(apk, tail.centralDirOffset)
	if err != nil {
		return nil, &NotFoundError{err}
	}

	block, err := parsePairs(raw)
	if err != nil {
		return nil, err
	}

	return &Apk{
		data:       apk,
		tail:       tail,
		blockStart: blockStart,
		Block:      block,
	}, nil
}

// CentralDirOffset returns the Central Directory offset as recorded in the
// source EOCD record.
func (a *Apk) CentralDirOffset() int64 {
	return a.tail.centralDirOffset
}

// findBlockBytes reads the footer at centralDirOffset-24, validates the magic
// and both size fields and returns the whole serialized block including the
// leading size field.
func findBlockBytes(apk []byte, centralDirOffset int64) (block []byte, offset int64, err error) {
	if centralDirOffset < apkSigBlockMinSize {
		return nil, 0, ErrBadMagic
	}

	footer := apk[centralDirOffset-24 : centralDirOffset]
	if binary.LittleEndian.Uint64(footer[8:]) != apkSigBlockMagicLo ||
		binary.LittleEndian.Uint64(footer[16:]) != apkSigBlockMagicHi {
		return nil, 0, ErrBadMagic
	}

	blockSizeFooter := binary.LittleEndian.Uint64(footer)
	if blockSizeFooter < 24 || blockSizeFooter > math.MaxInt32-8 {
		return nil, 0, fmt.Errorf("APK Signing Block size out of range: %d: %w", blockSizeFooter, ErrSizeMismatch)
	}

	totalSize := int64(blockSizeFooter) + 8
	offset = centralDirOffset - totalSize
	if offset < 0 {
		return nil, 0, fmt.Errorf("APK Signing Block offset out of range: %d: %w", offset, ErrSizeMismatch)
	}

	block = apk[offset:centralDirOffset]
	if blockSizeHeader := binary.LittleEndian.Uint64(block); blockSizeHeader != blockSizeFooter {
		return nil, 0, fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, blockSizeHeader, blockSizeFooter)
	}
	return block, offset, nil
}

// parsePairs walks the ID-value sequence between the leading size field and
// the footer. The cumulative consumed length must land exactly on the
// declared block size.
func parsePairs(raw []byte) (*Block, error) {
	pairs := raw[8 : len(raw)-24]

	b := &Block{byId: make(map[uint32]int)}
	pos := 0
	entryCount := 0

	for pos < len(pairs) {
		entryCount++

		if len(pairs)-pos < 8 {
			return nil, fmt.Errorf("%w: insufficient data to read size of entry #%d", ErrTruncatedPair, entryCount)
		}

		entryLen := binary.LittleEndian.Uint64(pairs[pos:])
		pos += 8
		if entryLen < 4 || entryLen > uint64(len(pairs)-pos) {
			return nil, fmt.Errorf("%w: entry #%d size out of range: %d, available: %d",
				ErrTruncatedPair, entryCount, entryLen, len(pairs)-pos)
		}

		id := binary.LittleEndian.Uint32(pairs[pos:])
		value := pairs[pos+4 : pos+int(entryLen)]
		pos += int(entryLen)

		b.byId[id] = len(b.Pairs)
		b.Pairs = append(b.Pairs, Pair{ID: id, Value: value})
	}
	return b, nil
}

// Value returns the value of the pair carrying id, if present.
func (b *Block) Value(id uint32) ([]byte, bool) {
	idx, prs := b.byId[id]
	if !prs {
		return nil, false
	}
	return b.Pairs[idx].Value, true
}
