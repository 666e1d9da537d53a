package signingblock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrValueTooLarge = errors.New("APK Signing Block pair value too large")

var reservedIds = map[uint32]string{
	blockIdSchemeV2:      "signature scheme v2",
	blockIdSchemeV3:      "signature scheme v3",
	blockIdSchemeV31:     "signature scheme v3.1",
	blockIdSourceStamp:   "source stamp",
	blockIdVerityPadding: "verity padding",
}

// WithPair returns a new Block whose pair sequence is b's with any existing
// pair carrying id removed and a new (id, value) pair appended at the end.
// Appending keeps the pairs covered by signature digests in front, inserting
// before them would break verifiers. b is not modified.
func (b *Block) WithPair(id uint32, value []byte) (*Block, error) {
	if name, prs := reservedIds[id]; prs {
		return nil, fmt.Errorf("id 0x%08x is reserved for the %s block", id, name)
	}
	if uint64(len(value)) > math.MaxInt32-12 {
		return nil, ErrValueTooLarge
	}

	nb := &Block{
		Pairs: make([]Pair, 0, len(b.Pairs)+1),
		byId:  make(map[uint32]int, len(b.Pairs)+1),
	}
	for _, p := range b.Pairs {
		if p.ID == id {
			continue
		}
		nb.byId[p.ID] = len(nb.Pairs)
		nb.Pairs = append(nb.Pairs, p)
	}
	nb.byId[id] = len(nb.Pairs)
	nb.Pairs = append(nb.Pairs, Pair{ID: id, Value: value})
	return nb, nil
}

// Serialize emits the block in its wire form, leading size field included.
// Both size fields are recomputed from the pair sequence.
func (b *Block) Serialize() ([]byte, error) {
	var pairsLen uint64
	for _, p := range b.Pairs {
		pairsLen += 8 + 4 + uint64(len(p.Value))
	}

	// excludes the leading size field, includes the trailing one and the magic
	blockSize := pairsLen + 8 + 16
	if blockSize > math.MaxInt32-8 {
		return nil, ErrValueTooLarge
	}

	out := make([]byte, 8+blockSize)
	binary.LittleEndian.PutUint64(out, blockSize)

	pos := 8
	for _, p := range b.Pairs {
		binary.LittleEndian.PutUint64(out[pos:], 4+uint64(len(p.Value)))
		pos += 8
		binary.LittleEndian.PutUint32(out[pos:], p.ID)
		pos += 4
		copy(out[pos:], p.Value)
		pos += len(p.Value)
	}

	binary.LittleEndian.PutUint64(out[pos:], blockSize)
	pos += 8
	binary.LittleEndian.PutUint64(out[pos:], apkSigBlockMagicLo)
	binary.LittleEndian.PutUint64(out[pos+8:], apkSigBlockMagicHi)
	pos += 16

	if pos != len(out) {
		panic(fmt.Sprintf("serialized size mismatch: %d vs %d", pos, len(out)))
	}
	return out, nil
}
