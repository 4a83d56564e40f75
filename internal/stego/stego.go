// Package stego hides an encrypted text payload in the least-significant bits
// of an image's colour channels.
//
// Payload layout: a 4-byte big-endian length of the encrypted blob followed by
// the blob itself, where the blob is IV(16) || AES-256-CBC ciphertext. Bits are
// written MSB first into R, G, B (cycling) of successive pixels in row-major
// order. Alpha is never touched.
package stego

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// LegacyPassphrase is the key material the system shipped with. It is only
// used when no passphrase is configured.
const LegacyPassphrase = "ISAA"

// ErrCapacity is returned when the framed payload does not fit in the image.
var ErrCapacity = errors.New("stego: payload exceeds image capacity")

const channelsPerPixel = 3

// Capacity returns the number of payload bits an image of the given bounds
// can carry.
func Capacity(r image.Rectangle) int {
	return r.Dx() * r.Dy() * channelsPerPixel
}

// Key derives the AES-256 key from a passphrase.
func Key(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// Encrypt returns IV || ciphertext for plaintext under the passphrase-derived
// key. A fresh random IV is generated per call.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	block, err := aes.NewCipher(Key(passphrase))
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Frame prefixes blob with its length as a big-endian uint32.
func Frame(blob []byte) []byte {
	out := make([]byte, 4+len(blob))
	binary.BigEndian.PutUint32(out, uint32(len(blob)))
	copy(out[4:], blob)
	return out
}

// Embed encrypts message, frames it, and writes it into a copy of src.
func Embed(src image.Image, message, passphrase string) (*image.NRGBA, error) {
	blob, err := Encrypt([]byte(message), passphrase)
	if err != nil {
		return nil, err
	}
	return EmbedPayload(src, Frame(blob))
}

// EmbedPayload writes an already framed payload into a copy of src. Capacity
// is validated before anything is written; src is never modified.
func EmbedPayload(src image.Image, payload []byte) (*image.NRGBA, error) {
	b := src.Bounds()
	need := len(payload) * 8
	if have := Capacity(b); need > have {
		return nil, fmt.Errorf("%w: need %d bits, have %d", ErrCapacity, need, have)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	width := b.Dx()
	bit := 0
	for _, by := range payload {
		for shift := 7; shift >= 0; shift-- {
			v := (by >> uint(shift)) & 1
			px := bit / channelsPerPixel
			off := dst.PixOffset(px%width, px/width) + bit%channelsPerPixel
			dst.Pix[off] = (dst.Pix[off] &^ 1) | v
			bit++
		}
	}
	return dst, nil
}

// EncodePNG serialises img as PNG, the only lossless format attachments use.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}
