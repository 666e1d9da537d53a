package signingblock

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ChannelId is the pair ID carrying the distribution channel metadata. It
// sits right below the scheme v2 ID and outside every reserved range; the
// v2 verifier only digests the blocks it knows, so an extra pair with this
// ID does not invalidate the signature. The same constant must be used by
// the write and read tooling.
const ChannelId = 0x71098719

var ErrInvalidChannelEncoding = errors.New("invalid channel encoding")

// A single channel is stored as its literal UTF-8 bytes. Multiple channels
// are stored as a 0x00 marker byte followed by length-prefixed records:
//
//	byte:   0x00
//	repeated:
//	    uint32: channel length, > 0
//	    bytes:  channel
//
// The marker cannot collide with a literal channel because empty channels
// and channels starting with a 0x00 byte are rejected on encode.
const channelRecordMarker = 0x00

// EncodeChannels serializes one or more channel strings into a pair value.
func EncodeChannels(channels []string) ([]byte, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidChannelEncoding)
	}

	for _, ch := range channels {
		if len(ch) == 0 {
			return nil, fmt.Errorf("%w: empty channel", ErrInvalidChannelEncoding)
		}
		if ch[0] == channelRecordMarker {
			return nil, fmt.Errorf("%w: channel starts with a zero byte", ErrInvalidChannelEncoding)
		}
	}

	if len(channels) == 1 {
		return []byte(channels[0]), nil
	}

	size := 1
	for _, ch := range channels {
		size += 4 + len(ch)
	}

	out := make([]byte, 1, size)
	out[0] = channelRecordMarker
	var lenBuf [4]byte
	for _, ch := range channels {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ch)))
		out = append(out, lenBuf[:]...)
		out = append(out, ch...)
	}
	return out, nil
}

// DecodeChannels is the inverse of EncodeChannels. The record form is parsed
// strictly: zero lengths, overruns and trailing bytes are all rejected, so a
// channel name containing delimiter-like bytes cannot corrupt the result.
func DecodeChannels(value []byte) ([]string, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidChannelEncoding)
	}

	if value[0] != channelRecordMarker {
		return []string{string(value)}, nil
	}

	var channels []string
	pos := 1
	for pos < len(value) {
		if len(value)-pos < 4 {
			return nil, fmt.Errorf("%w: truncated record length at offset %d", ErrInvalidChannelEncoding, pos)
		}
		recLen := binary.LittleEndian.Uint32(value[pos:])
		pos += 4
		if recLen == 0 {
			return nil, fmt.Errorf("%w: zero-length record at offset %d", ErrInvalidChannelEncoding, pos-4)
		}
		if recLen > uint32(len(value)-pos) {
			return nil, fmt.Errorf("%w: record of %d bytes overruns value at offset %d", ErrInvalidChannelEncoding, recLen, pos-4)
		}
		channels = append(channels, string(value[pos:pos+int(recLen)]))
		pos += int(recLen)
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: marker with no records", ErrInvalidChannelEncoding)
	}
	return channels, nil
}
