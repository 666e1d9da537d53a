package signingblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestFindZipTailNoComment(t *testing.T) {
	apk := testApk(nil, rawPair(blockIdSchemeV2, []byte("sig")))

	tail, err := findZipTail(apk)
	if err != nil {
		t.Fatal(err)
	}

	wantCd := int64(len(testPrefix) + len(rawBlock(rawPair(blockIdSchemeV2, []byte("sig")))))
	if tail.centralDirOffset != wantCd {
		t.Errorf("centralDirOffset = %d, want %d", tail.centralDirOffset, wantCd)
	}
	if tail.eocdOffset != wantCd+int64(len(testCentralDir)) {
		t.Errorf("eocdOffset = %d, want %d", tail.eocdOffset, wantCd+int64(len(testCentralDir)))
	}
	if tail.centralDirSize != int64(len(testCentralDir)) {
		t.Errorf("centralDirSize = %d, want %d", tail.centralDirSize, len(testCentralDir))
	}
}

func TestFindZipTailWithComment(t *testing.T) {
	comment := []byte("built by the release pipeline")
	apk := testApk(comment, rawPair(blockIdSchemeV2, []byte("sig")))

	tail, err := findZipTail(apk)
	if err != nil {
		t.Fatal(err)
	}
	if got := tail.eocd[eocdRecMinSize:]; !bytes.Equal(got, comment) {
		t.Errorf("eocd comment = %q, want %q", got, comment)
	}
}

func TestFindZipTailSpuriousMagicInComment(t *testing.T) {
	// A comment carrying EOCD-magic-looking bytes. The fake record declares
	// a comment length that does not reach the end of the file, so the scan
	// must skip it and settle on the real record.
	comment := make([]byte, 64)
	copy(comment, strings.Repeat("x", len(comment)))
	binary.LittleEndian.PutUint32(comment[10:], eocdRecMagic)
	binary.LittleEndian.PutUint16(comment[10+eocdCommentSizeOffset:], 7)

	apk := testApk(comment, rawPair(blockIdSchemeV2, []byte("sig")))

	tail, err := findZipTail(apk)
	if err != nil {
		t.Fatal(err)
	}
	if tail.centralDirOffset+tail.centralDirSize != tail.eocdOffset {
		t.Errorf("picked the wrong EOCD candidate: cd=%d size=%d eocd=%d",
			tail.centralDirOffset, tail.centralDirSize, tail.eocdOffset)
	}
	if got := len(apk) - int(tail.eocdOffset); got != eocdRecMinSize+len(comment) {
		t.Errorf("EOCD record length = %d, want %d", got, eocdRecMinSize+len(comment))
	}
}

func TestFindZipTailTooShort(t *testing.T) {
	if _, err := findZipTail([]byte("PK")); !errors.Is(err, ErrEocdNotFound) {
		t.Errorf("err = %v, want ErrEocdNotFound", err)
	}
}

func TestFindZipTailNoMagic(t *testing.T) {
	apk := bytes.Repeat([]byte{0xab}, 100)
	if _, err := findZipTail(apk); !errors.Is(err, ErrEocdNotFound) {
		t.Errorf("err = %v, want ErrEocdNotFound", err)
	}
}

func TestFindZipTailCentralDirNotAdjacent(t *testing.T) {
	block := rawBlock(rawPair(blockIdSchemeV2, []byte("sig")))
	var buf bytes.Buffer
	buf.Write(testPrefix)
	buf.Write(block)
	buf.Write(testCentralDir)
	// declared size one byte short of reaching the EOCD
	buf.Write(rawEocd(len(testPrefix)+len(block), len(testCentralDir)-1, nil))

	_, err := findZipTail(buf.Bytes())
	if err == nil || !strings.Contains(err.Error(), "not immediately followed") {
		t.Errorf("err = %v, want central directory adjacency error", err)
	}
}

func TestFindZipTailZip64(t *testing.T) {
	// A zip64 EOCD locator right before the EOCD record.
	centralDir := make([]byte, 40)
	binary.LittleEndian.PutUint32(centralDir[len(centralDir)-zip64LocatorSize:], zip64LocatorMagic)
	block := rawBlock(rawPair(blockIdSchemeV2, []byte("sig")))
	apk := rawApk(testPrefix, block, centralDir, nil)

	_, err := findZipTail(apk)
	if err == nil || !strings.Contains(err.Error(), "ZIP64") {
		t.Errorf("err = %v, want ZIP64 rejection", err)
	}
}
