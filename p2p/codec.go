package p2p

import (
	"crypto/rsa"

	"github.com/KelvinWu602/onion-sim/message"
)

// sealLayer produces one onion layer addressed to the holder of hopPubKey.
// A fresh symmetric key is drawn for every call.
func sealLayer(hopPubKey string, inner message.Inner) (string, error) {
	content, err := inner.String()
	if err != nil {
		return "", err
	}
	key, err := CreateRandomSymmetricKey()
	if err != nil {
		return "", err
	}
	ciphertext, err := SymEncrypt(key, content)
	if err != nil {
		return "", err
	}
	keySegment, err := RsaEncrypt(key, hopPubKey)
	if err != nil {
		return "", err
	}
	return message.Layer{KeySegment: keySegment, Ciphertext: ciphertext}.String(), nil
}

// recoverKey decrypts the key segment of layer with the router's private key.
func recoverKey(layer message.Layer, prv *rsa.PrivateKey) (SecretKey, error) {
	raw, err := RsaDecrypt(layer.KeySegment, prv)
	if err != nil {
		return nil, err
	}
	return SecretKey(raw), nil
}

// openLayer is the inverse of sealLayer.
func openLayer(layer message.Layer, key SecretKey) (string, error) {
	return SymDecrypt(key, layer.Ciphertext)
}
