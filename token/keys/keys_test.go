package keys_test

import (
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/stretchr/testify/require"
)

func TestLoadKeyPairFromPEM(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("test-key", 2048)
	require.NoError(t, err)

	privatePEM, err := kp.ExportPrivateKeyPEM()
	require.NoError(t, err)
	publicPEM, err := kp.ExportPublicKeyPEM()
	require.NoError(t, err)

	t.Run("private and public", func(t *testing.T) {
		loaded, err := keys.LoadKeyPairFromPEM("test-key", privatePEM, publicPEM)
		require.NoError(t, err)
		require.True(t, loaded.CanSign())
	})

	t.Run("public only is verify-only", func(t *testing.T) {
		loaded, err := keys.LoadKeyPairFromPEM("test-key", "", publicPEM)
		require.NoError(t, err)
		require.False(t, loaded.CanSign())

		_, err = keys.NewKeyPairSigner(loaded).Sign(jwt.MapClaims{"sub": "x"}, nil)
		require.Error(t, err)
	})

	t.Run("mismatched public key", func(t *testing.T) {
		other, err := keys.GenerateRSAKeyPair("other", 2048)
		require.NoError(t, err)
		otherPublic, err := other.ExportPublicKeyPEM()
		require.NoError(t, err)

		_, err = keys.LoadKeyPairFromPEM("test-key", privatePEM, otherPublic)
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not match")
	})

	t.Run("no key material", func(t *testing.T) {
		_, err := keys.LoadKeyPairFromPEM("test-key", "", "")
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := keys.LoadKeyPairFromPEM("test-key", "not pem", "")
		require.Error(t, err)
	})
}

func TestKeyPairFiles(t *testing.T) {
	dir := t.TempDir()
	privateFile := filepath.Join(dir, "private.pem")
	publicFile := filepath.Join(dir, "public.pem")

	kp, err := keys.GenerateRSAKeyPair("file-key", 2048)
	require.NoError(t, err)
	require.NoError(t, keys.WriteKeyPairFiles(kp, privateFile, publicFile))

	loaded, err := keys.LoadKeyPairFromFiles("file-key", privateFile, publicFile)
	require.NoError(t, err)
	require.True(t, loaded.CanSign())

	verifyOnly, err := keys.LoadKeyPairFromFiles("file-key", filepath.Join(dir, "missing.pem"), publicFile)
	require.NoError(t, err)
	require.False(t, verifyOnly.CanSign())
}

func TestKeyPairSigner_SignAndVerify(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("sign-key", 2048)
	require.NoError(t, err)
	signer := keys.NewKeyPairSigner(kp)

	signed, err := signer.Sign(jwt.MapClaims{"sub": "alice"}, map[string]any{"salt": "abc"})
	require.NoError(t, err)

	token, err := jwt.Parse(signed, signer.GetVerificationKey)
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, "abc", token.Header["salt"])
	require.Equal(t, "sign-key", token.Header["kid"])

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = jwt.Parse(hmacToken, signer.GetVerificationKey)
	require.Error(t, err)
}
