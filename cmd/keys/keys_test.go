package keys

import (
	"bytes"
	"strings"
	"testing"

	"tokenexecutor/src/security"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealWalletKeyRoundTrip(t *testing.T) {
	var keyOut bytes.Buffer
	require.NoError(t, GenerateCredentialsKey(&keyOut))
	credentials := strings.TrimPrefix(strings.TrimSpace(keyOut.String()), "CREDENTIALS_KEY=")
	t.Setenv("CREDENTIALS_KEY", credentials)

	wallet, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, SealWalletKey(&out, strings.NewReader(wallet.String()+"\n")))
	assert.Contains(t, out.String(), wallet.PublicKey().String())

	var sealed string
	for _, line := range strings.Split(out.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "WALLET_PRIVATE_KEY_SEALED="); ok {
			sealed = v
		}
	}
	require.NotEmpty(t, sealed)

	t.Setenv("WALLET_PRIVATE_KEY_SEALED", sealed)
	loaded, err := security.LoadWallet()
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), loaded.PublicKey())
}

func TestSealWalletKeyRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, SealWalletKey(&out, strings.NewReader("not-a-key\n")))
	assert.Error(t, SealWalletKey(&out, strings.NewReader("")))
}
