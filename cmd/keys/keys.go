package keys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"tokenexecutor/src/security"

	"github.com/gagliardetto/solana-go"
)

// GenerateCredentialsKey prints a new CREDENTIALS_KEY value.
func GenerateCredentialsKey(w io.Writer) error {
	key, err := security.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "CREDENTIALS_KEY=%s\n", key)
	return err
}

// SealWalletKey reads a base58 wallet key from the first line of r and prints it sealed
// with the configured CREDENTIALS_KEY, ready for WALLET_PRIVATE_KEY_SEALED.
func SealWalletKey(w io.Writer, r io.Reader) error {
	reader := bufio.NewScanner(r)
	reader.Buffer(make([]byte, 0, 1024), 64*1024)
	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return err
		}
		return errors.New("no wallet key on input")
	}
	line := strings.TrimSpace(reader.Text())

	key, err := solana.PrivateKeyFromBase58(line)
	if err != nil {
		return fmt.Errorf("not a base58 wallet key: %w", err)
	}
	sealed, err := security.EncryptString(line)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "# wallet %s\nWALLET_PRIVATE_KEY_SEALED=%s\n", key.PublicKey(), sealed)
	return err
}
