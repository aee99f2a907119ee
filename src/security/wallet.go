package security

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"
)

var ErrNoWallet = errors.New("no wallet key configured: set WALLET_PRIVATE_KEY_SEALED")

// LoadWallet returns the trading wallet key, preferring the sealed form.
func LoadWallet() (solana.PrivateKey, error) {
	return loadWallet(GetConfig())
}

func loadWallet(config Config) (solana.PrivateKey, error) {
	encoded := ""
	switch {
	case config.WalletKeySealed != "":
		plain, err := decryptWithKey(config.CredentialsKey, config.WalletKeySealed)
		if err != nil {
			return nil, fmt.Errorf("open sealed wallet key: %w", err)
		}
		encoded = plain
	case config.WalletKeyPlain != "":
		logger.Warn("Using plain WALLET_PRIVATE_KEY, seal it with the seal-key command for production")
		encoded = config.WalletKeyPlain
	default:
		return nil, ErrNoWallet
	}

	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return key, nil
}
