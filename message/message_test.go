package message

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitLayer(t *testing.T) {
	keySegment := strings.Repeat("k", KEY_SEGMENT_WIDTH)
	layer, err := SplitLayer(keySegment + "ciphertext")
	if err != nil {
		t.Fatalf("SplitLayer: %v", err)
	}
	if layer.KeySegment != keySegment {
		t.Errorf("layer.KeySegment, expect %d chars, actual %d", KEY_SEGMENT_WIDTH, len(layer.KeySegment))
	}
	if layer.Ciphertext != "ciphertext" {
		t.Errorf("layer.Ciphertext, expect: ciphertext, actual %v", layer.Ciphertext)
	}
	if layer.String() != keySegment+"ciphertext" {
		t.Errorf("layer.String() does not join back to the input")
	}
}

func TestSplitLayerShorterThanKeySegment(t *testing.T) {
	_, err := SplitLayer(strings.Repeat("k", KEY_SEGMENT_WIDTH-1))
	if !errors.Is(err, ErrShortLayer) {
		t.Errorf("expect ErrShortLayer, actual %v", err)
	}
}

func TestSplitLayerWithoutCiphertext(t *testing.T) {
	_, err := SplitLayer(strings.Repeat("k", KEY_SEGMENT_WIDTH))
	if !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("expect ErrEmptyCiphertext, actual %v", err)
	}
}

func TestLayerValidateKeySegmentWidth(t *testing.T) {
	layer := Layer{KeySegment: "short", Ciphertext: "x"}
	if err := layer.Validate(); !errors.Is(err, ErrKeySegmentWidth) {
		t.Errorf("expect ErrKeySegmentWidth, actual %v", err)
	}
}

func TestEncodeAddress(t *testing.T) {
	field, err := EncodeAddress(3007)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	if field != "0000003007" {
		t.Errorf("expect: 0000003007, actual %v", field)
	}
	if _, err := EncodeAddress(-1); !errors.Is(err, ErrAddressOverrun) {
		t.Errorf("negative address, expect ErrAddressOverrun, actual %v", err)
	}
	if _, err := EncodeAddress(MAX_ADDRESS + 1); !errors.Is(err, ErrAddressOverrun) {
		t.Errorf("oversized address, expect ErrAddressOverrun, actual %v", err)
	}
}

func TestDecodeAddressRejectsNonDigits(t *testing.T) {
	for _, field := range []string{"-000003007", "00000 3007", "000000300a", "3007"} {
		if _, err := DecodeAddress(field); !errors.Is(err, ErrAddressDigits) {
			t.Errorf("field %q, expect ErrAddressDigits, actual %v", field, err)
		}
	}
}

func TestInnerRoundTrip(t *testing.T) {
	in := Inner{NextHop: 4002, Remainder: "Hello World!"}
	encoded, err := in.String()
	if err != nil {
		t.Fatalf("Inner.String: %v", err)
	}
	if encoded != "0000004002Hello World!" {
		t.Errorf("expect: 0000004002Hello World!, actual %v", encoded)
	}
	out, err := ParseInner(encoded)
	if err != nil {
		t.Fatalf("ParseInner: %v", err)
	}
	if out != in {
		t.Errorf("expect %v, actual %v", in, out)
	}
}

func TestParseInnerWithEmptyRemainder(t *testing.T) {
	out, err := ParseInner("0000003001")
	if err != nil {
		t.Fatalf("ParseInner: %v", err)
	}
	if out.NextHop != 3001 || out.Remainder != "" {
		t.Errorf("unexpected inner %v", out)
	}
}

func TestParseInnerTooShort(t *testing.T) {
	if _, err := ParseInner("00003"); !errors.Is(err, ErrShortInner) {
		t.Errorf("expect ErrShortInner, actual %v", err)
	}
}
