package signingblock

import (
	"bytes"
	"encoding/binary"
)

// Test fixtures are assembled by hand so every offset is under control:
// [fake zip entries] [signing block] [central directory] [EOCD + comment].

var (
	testPrefix     = []byte("PK\x03\x04 fake local entry data, content does not matter here")
	testCentralDir = []byte("PK\x01\x02 fake central directory records")
)

func rawPair(id uint32, value []byte) []byte {
	out := make([]byte, 8+4+len(value))
	binary.LittleEndian.PutUint64(out, 4+uint64(len(value)))
	binary.LittleEndian.PutUint32(out[8:], id)
	copy(out[12:], value)
	return out
}

func rawBlock(pairs ...[]byte) []byte {
	var pairsLen int
	for _, p := range pairs {
		pairsLen += len(p)
	}

	blockSize := uint64(pairsLen) + 8 + 16
	out := make([]byte, 0, 8+blockSize)
	out = binary.LittleEndian.AppendUint64(out, blockSize)
	for _, p := range pairs {
		out = append(out, p...)
	}
	out = binary.LittleEndian.AppendUint64(out, blockSize)
	out = binary.LittleEndian.AppendUint64(out, apkSigBlockMagicLo)
	out = binary.LittleEndian.AppendUint64(out, apkSigBlockMagicHi)
	return out
}

func rawEocd(centralDirOffset, centralDirSize int, comment []byte) []byte {
	out := make([]byte, eocdRecMinSize+len(comment))
	binary.LittleEndian.PutUint32(out, eocdRecMagic)
	binary.LittleEndian.PutUint32(out[eocdCentralDirSizeOffset:], uint32(centralDirSize))
	binary.LittleEndian.PutUint32(out[eocdCentralDirOffsetOffset:], uint32(centralDirOffset))
	binary.LittleEndian.PutUint16(out[eocdCommentSizeOffset:], uint16(len(comment)))
	copy(out[eocdRecMinSize:], comment)
	return out
}

func rawApk(prefix, block, centralDir, comment []byte) []byte {
	var buf bytes.Buffer
	buf.Write(prefix)
	buf.Write(block)
	buf.Write(centralDir)
	buf.Write(rawEocd(len(prefix)+len(block), len(centralDir), comment))
	return buf.Bytes()
}

func testApk(comment []byte, pairs ...[]byte) []byte {
	return rawApk(testPrefix, rawBlock(pairs...), testCentralDir, comment)
}
