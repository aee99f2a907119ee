package connectors

import (
	"fmt"
	"strings"
)

// SwapProgramErrorCodes maps Jupiter aggregator custom program errors seen in failed swaps.
var SwapProgramErrorCodes = map[string]string{
	"0x1771": "SLIPPAGE_TOLERANCE_EXCEEDED",
	"0x1788": "SLIPPAGE_EXCEEDED_ON_ROUTE",
}

// slippageCodes are the errors that put a token on the high volatility list.
// On-chain meta reports the same codes in decimal form, e.g. map[Custom:6024].
var slippageCodes = []string{"0x1771", "0x1788", "Custom:6001]", "Custom:6024]"}

// IsSlippageError reports whether a swap failure was caused by price movement past the slippage bound.
func IsSlippageError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "slippage") {
		return true
	}
	for _, code := range slippageCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// DescribeProgramError renders known custom program error codes contained in msg.
func DescribeProgramError(msg string) string {
	for code, name := range SwapProgramErrorCodes {
		if strings.Contains(msg, "custom program error: "+code) {
			return fmt.Sprintf("%s (%s)", name, code)
		}
	}
	return msg
}
