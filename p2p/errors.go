package p2p

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error kinds of the onion protocol. Every error returned by this package matches at most one of
// them with errors.Is.
var (
	ErrInsufficientNodes  = errors.New("insufficient nodes to build a circuit")
	ErrDecryption         = errors.New("layer cannot be decrypted")
	ErrAddressParse       = errors.New("next hop address cannot be parsed")
	ErrDownstreamDelivery = errors.New("downstream delivery failed")
)

func errorCode(kind error) string {
	switch kind {
	case ErrInsufficientNodes:
		return "insufficient_nodes"
	case ErrDecryption:
		return "decryption"
	case ErrAddressParse:
		return "address_parse"
	case ErrDownstreamDelivery:
		return "downstream_delivery"
	default:
		return "internal"
	}
}

func isKind(err error, kind error) bool {
	return err != nil && errors.Is(err, kind)
}

// wrapKind attaches kind to cause so that errors.Is matches both of them.
func wrapKind(domain string, kind error, cause error, format string, args ...any) error {
	joined := kind
	if cause != nil {
		joined = fmt.Errorf("%w: %w", kind, cause)
	}
	return oops.
		In(domain).
		Code(errorCode(kind)).
		Wrapf(joined, format, args...)
}
