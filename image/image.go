// Package image defines the on-disk program image format: a CBOR
// envelope wrapping a raw code stream with a name, format version and
// content checksum. The code bytes inside an image are directly
// executable; the envelope only adds identity and integrity for
// storage and transport.
package image

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/minnowlang/minnow/vm"
)

// FormatVersion is the image format produced and understood by this
// package.
const FormatVersion = 1

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is a stored program. Entry is the offset execution starts at,
// normally zero. Sum is the content checksum covering the version, name
// and code.
type Image struct {
	Version uint32   `cbor:"1,keyasint"`
	Name    string   `cbor:"2,keyasint"`
	Entry   uint32   `cbor:"3,keyasint,omitempty"`
	Code    []byte   `cbor:"4,keyasint"`
	Sum     [32]byte `cbor:"5,keyasint"`
}

// New wraps prog in an image with the checksum filled in.
func New(prog *vm.Program) *Image {
	return &Image{
		Version: FormatVersion,
		Name:    prog.Name,
		Code:    prog.Code,
		Sum:     Checksum(prog.Name, prog.Code),
	}
}

// Checksum computes the content hash of a named code stream. Each field
// is length-prefixed so the boundary between name and code is part of
// the hash, and a leading tag byte versions the hash format itself.
func Checksum(name string, code []byte) [32]byte {
	buf := make([]byte, 0, 1+4+len(name)+4+len(code))
	buf = append(buf, FormatVersion)

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(name)))
	buf = append(buf, n[:]...)
	buf = append(buf, name...)

	binary.BigEndian.PutUint32(n[:], uint32(len(code)))
	buf = append(buf, n[:]...)
	buf = append(buf, code...)

	return sha256.Sum256(buf)
}

// Verify checks the declared checksum against the image content.
func (img *Image) Verify() error {
	if img.Version != FormatVersion {
		return fmt.Errorf("image: unsupported format version %d", img.Version)
	}
	if got := Checksum(img.Name, img.Code); got != img.Sum {
		return fmt.Errorf("image: checksum mismatch: declared %x, computed %x", img.Sum, got)
	}
	return nil
}

// Program unwraps the executable program.
func (img *Image) Program() *vm.Program {
	return vm.NewProgram(img.Name, img.Code)
}

// Marshal serializes an image to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an image from CBOR bytes and verifies its
// checksum.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if err := img.Verify(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Save writes the image to path.
func Save(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return fmt.Errorf("image: marshal %s: %w", img.Name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	return nil
}

// Load reads and verifies the image at path.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
