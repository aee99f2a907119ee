package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Base64 32-byte secretbox key used to seal the wallet key at rest.
	CredentialsKey string `envconfig:"CREDENTIALS_KEY"`
	// Sealed base58 wallet private key, produced by the seal-key command.
	WalletKeySealed string `envconfig:"WALLET_PRIVATE_KEY_SEALED"`
	// Plain base58 wallet private key. Accepted for local development only.
	WalletKeyPlain string `envconfig:"WALLET_PRIVATE_KEY"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
