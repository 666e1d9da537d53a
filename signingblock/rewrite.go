package signingblock

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Rewrite splices block in place of the APK's original signing block and
// returns the bytes of the whole new file. Only the signing block region and
// the EOCD's central directory offset field change, the Central Directory
// and the EOCD comment are carried over untouched.
func (a *Apk) Rewrite(block *Block) ([]byte, error) {
	raw, err := block.Serialize()
	if err != nil {
		return nil, err
	}

	oldLen := a.tail.centralDirOffset - a.blockStart
	delta := int64(len(raw)) - oldLen

	newCentralDirOffset := a.tail.centralDirOffset + delta
	if newCentralDirOffset < 0 || newCentralDirOffset > math.MaxUint32 {
		return nil, fmt.Errorf("new Central Directory offset does not fit the EOCD field: %d", newCentralDirOffset)
	}

	out := make([]byte, 0, int64(len(a.data))+delta)
	out = append(out, a.data[:a.blockStart]...)
	out = append(out, raw...)
	out = append(out, a.data[a.tail.centralDirOffset:a.tail.eocdOffset]...)
	out = append(out, a.tail.eocd...)

	eocd := out[a.tail.eocdOffset+delta:]
	binary.LittleEndian.PutUint32(eocd[eocdCentralDirOffsetOffset:], uint32(newCentralDirOffset))
	return out, nil
}

// WriteApk writes the rewritten APK to path atomically: the bytes go to a
// temporary file in the same directory which is renamed over path only after
// a successful flush. A failed write leaves no partial output behind.
func (a *Apk) WriteApk(path string, block *Block) error {
	out, err := a.Rewrite(block)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out)
}

func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return err
	}

	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}

	if errClose := tmp.Close(); err == nil {
		err = errClose
	}

	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}

	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
