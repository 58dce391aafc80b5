package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/onion-sim/message"
)

func TestRsaEncryptFitsKeySegment(t *testing.T) {
	keys, err := GenerateRsaKeyPair()
	require.NoError(t, err)
	pub, err := ExportPubKey(keys.Public)
	require.NoError(t, err)

	key, err := CreateRandomSymmetricKey()
	require.NoError(t, err)

	segment, err := RsaEncrypt(key, pub)
	require.NoError(t, err)
	assert.Len(t, segment, message.KEY_SEGMENT_WIDTH)

	recovered, err := RsaDecrypt(segment, keys.Private)
	require.NoError(t, err)
	assert.Equal(t, []byte(key), recovered)
}

func TestRsaDecryptInWrongKey(t *testing.T) {
	right, err := GenerateRsaKeyPair()
	require.NoError(t, err)
	wrong, err := GenerateRsaKeyPair()
	require.NoError(t, err)
	pub, err := ExportPubKey(right.Public)
	require.NoError(t, err)

	segment, err := RsaEncrypt([]byte("Hello, World!"), pub)
	require.NoError(t, err)

	_, err = RsaDecrypt(segment, wrong.Private)
	assert.Error(t, err)
}

func TestExportImportKeys(t *testing.T) {
	assert := assert.New(t)
	keys, err := GenerateRsaKeyPair()
	require.NoError(t, err)

	pub, err := ExportPubKey(keys.Public)
	require.NoError(t, err)
	prv, err := ExportPrvKey(keys.Private)
	require.NoError(t, err)

	importedPub, err := ImportPubKey(pub)
	assert.NoError(err)
	assert.True(keys.Public.Equal(importedPub), "public key should survive export")

	importedPrv, err := ImportPrvKey(prv)
	assert.NoError(err)
	assert.True(keys.Private.Equal(importedPrv), "private key should survive export")

	_, err = ImportPubKey("not a key")
	assert.Error(err)
	_, err = ImportPubKey(prv)
	assert.Error(err, "a private key is not a PKIX public key")
}

func TestSymmetricEncrypt(t *testing.T) {
	assert := assert.New(t)
	key, err := CreateRandomSymmetricKey()
	require.NoError(t, err)

	first, err := SymEncrypt(key, "Hello World!")
	require.NoError(t, err)
	second, err := SymEncrypt(key, "Hello World!")
	require.NoError(t, err)
	assert.NotEqual(first, second, "every seal draws a fresh nonce")

	plaintext, err := SymDecrypt(key, first)
	assert.NoError(err)
	assert.Equal("Hello World!", plaintext)

	other, err := CreateRandomSymmetricKey()
	require.NoError(t, err)
	_, err = SymDecrypt(other, first)
	assert.Error(err)

	_, err = SymDecrypt(key, "AAAA")
	assert.Error(err, "shorter than nonce and tag")
}
