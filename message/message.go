// Package message implements the layered payload that travels between onion routers.
//
// A layer is the concatenation of two text segments:
//
//	KeySegment (KEY_SEGMENT_WIDTH chars) || Ciphertext (rest of the string)
//
// KeySegment is the per-hop symmetric key encrypted under the hop's public key. Ciphertext, once
// decrypted with that symmetric key, yields an Inner: a zero-padded next hop address of
// ADDRESS_WIDTH chars followed by the remainder (the next layer, or the plaintext at the last hop).
// There is no length prefix anywhere; both widths are fixed by the protocol.
package message

import (
	"errors"
	"fmt"
)

// KEY_SEGMENT_WIDTH is the number of chars of a base64 encoded RSA-2048 ciphertext.
const KEY_SEGMENT_WIDTH = 344

// ADDRESS_WIDTH is the number of chars of the zero-padded decimal hop address.
const ADDRESS_WIDTH = 10

// MAX_ADDRESS is the largest address that fits in ADDRESS_WIDTH digits.
const MAX_ADDRESS = 9999999999

var (
	ErrShortLayer      = errors.New("layer is shorter than the key segment")
	ErrEmptyCiphertext = errors.New("layer carries no ciphertext after the key segment")
	ErrKeySegmentWidth = errors.New("key segment width mismatch")
)

// Layer is one level of the nested encryption, as seen by the relay that owns it.
type Layer struct {
	KeySegment string // KeySegment is the asymmetric encrypted symmetric key.
	Ciphertext string // Ciphertext is the symmetric encrypted Inner.
}

// Validate checks the fixed-width invariant of the key segment.
func (l Layer) Validate() error {
	if len(l.KeySegment) != KEY_SEGMENT_WIDTH {
		return fmt.Errorf("%w: expect %d, actual %d", ErrKeySegmentWidth, KEY_SEGMENT_WIDTH, len(l.KeySegment))
	}
	if len(l.Ciphertext) == 0 {
		return ErrEmptyCiphertext
	}
	return nil
}

// String joins the two segments into the wire representation.
func (l Layer) String() string {
	return l.KeySegment + l.Ciphertext
}

// SplitLayer cuts a received payload at KEY_SEGMENT_WIDTH.
func SplitLayer(payload string) (Layer, error) {
	if len(payload) < KEY_SEGMENT_WIDTH {
		return Layer{}, fmt.Errorf("%w: payload has %d chars, key segment needs %d", ErrShortLayer, len(payload), KEY_SEGMENT_WIDTH)
	}
	layer := Layer{
		KeySegment: payload[:KEY_SEGMENT_WIDTH],
		Ciphertext: payload[KEY_SEGMENT_WIDTH:],
	}
	if err := layer.Validate(); err != nil {
		return Layer{}, err
	}
	return layer, nil
}
