package p2p

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/KelvinWu602/onion-sim/message"
)

// RSA_KEY_BITS fixes the asymmetric ciphertext at 256 bytes, i.e. message.KEY_SEGMENT_WIDTH base64 chars.
const RSA_KEY_BITS = 2048

// SecretKey is a per-hop symmetric key.
type SecretKey []byte

// KeyPair is the long-lived asymmetric identity of an onion router.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

func GenerateRsaKeyPair() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, RSA_KEY_BITS)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "generate rsa key failed")
	}
	return &KeyPair{Public: &private.PublicKey, Private: private}, nil
}

// ExportPubKey serializes a public key as base64 PKIX DER, the form stored by the registry.
func ExportPubKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "marshal public key failed")
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ExportPrvKey serializes a private key as base64 PKCS8 DER.
func ExportPrvKey(prv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(prv)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "marshal private key failed")
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

func ImportPubKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "public key is not base64")
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "public key is not PKIX")
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, oops.In("keys").Errorf("public key is %T, not rsa", parsed)
	}
	return pub, nil
}

func ImportPrvKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "private key is not base64")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "private key is not PKCS8")
	}
	prv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, oops.In("keys").Errorf("private key is %T, not rsa", parsed)
	}
	return prv, nil
}

// RsaEncrypt encrypts data under a serialized public key and returns exactly
// message.KEY_SEGMENT_WIDTH chars.
func RsaEncrypt(data []byte, pubKey string) (string, error) {
	pub, err := ImportPubKey(pubKey)
	if err != nil {
		return "", err
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, data, nil)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "rsa encrypt failed")
	}
	encoded := base64.StdEncoding.EncodeToString(ciphertext)
	if len(encoded) != message.KEY_SEGMENT_WIDTH {
		return "", oops.In("keys").
			With("width", len(encoded)).
			Errorf("rsa ciphertext does not match key segment width %d", message.KEY_SEGMENT_WIDTH)
	}
	return encoded, nil
}

func RsaDecrypt(ciphertext string, prv *rsa.PrivateKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "rsa ciphertext is not base64")
	}
	data, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, prv, raw, nil)
	if err != nil {
		return nil, oops.In("keys").Wrapf(err, "rsa decrypt failed")
	}
	return data, nil
}

func CreateRandomSymmetricKey() (SecretKey, error) {
	key := make(SecretKey, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, oops.In("keys").Wrapf(err, "read random key failed")
	}
	return key, nil
}

// SymEncrypt seals plaintext and returns base64(nonce || ciphertext).
func SymEncrypt(key SecretKey, plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "invalid symmetric key")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.In("keys").Wrapf(err, "read random nonce failed")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func SymDecrypt(key SecretKey, ciphertext string) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "invalid symmetric key")
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "symmetric ciphertext is not base64")
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", oops.In("keys").With("length", len(raw)).Errorf("symmetric ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", oops.In("keys").Wrapf(err, "symmetric decrypt failed")
	}
	return string(plaintext), nil
}
