package message

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrShortInner     = errors.New("decrypted layer is shorter than the address field")
	ErrAddressDigits  = errors.New("address field is not a zero-padded decimal")
	ErrAddressOverrun = errors.New("address does not fit in the address field")
)

// Inner is the plaintext of one layer.
type Inner struct {
	NextHop   int    // NextHop is the address the remainder must be sent to.
	Remainder string // Remainder is the next layer, or the final plaintext at the terminal hop.
}

// String prefixes the remainder with the zero-padded next hop address.
func (in Inner) String() (string, error) {
	field, err := EncodeAddress(in.NextHop)
	if err != nil {
		return "", err
	}
	return field + in.Remainder, nil
}

// ParseInner slices the fixed-width address off a decrypted layer.
func ParseInner(decrypted string) (Inner, error) {
	if len(decrypted) < ADDRESS_WIDTH {
		return Inner{}, fmt.Errorf("%w: %d chars", ErrShortInner, len(decrypted))
	}
	addr, err := DecodeAddress(decrypted[:ADDRESS_WIDTH])
	if err != nil {
		return Inner{}, err
	}
	return Inner{
		NextHop:   addr,
		Remainder: decrypted[ADDRESS_WIDTH:],
	}, nil
}

// EncodeAddress renders addr as exactly ADDRESS_WIDTH decimal digits.
func EncodeAddress(addr int) (string, error) {
	if addr < 0 || addr > MAX_ADDRESS {
		return "", fmt.Errorf("%w: %d", ErrAddressOverrun, addr)
	}
	return fmt.Sprintf("%0*d", ADDRESS_WIDTH, addr), nil
}

// DecodeAddress accepts digits only, so a sign or a space inside the field is a parse failure.
func DecodeAddress(field string) (int, error) {
	if len(field) != ADDRESS_WIDTH {
		return 0, fmt.Errorf("%w: field has %d chars", ErrAddressDigits, len(field))
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrAddressDigits, field)
		}
	}
	addr, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAddressDigits, err)
	}
	return int(addr), nil
}
