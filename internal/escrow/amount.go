package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// 1 ether = 1e18 wei.
const weiDecimals = 18

// ParseEther converts a decimal ether string (e.g. "1.5") to wei. Fractional
// digits beyond 18 are dropped.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}

	if len(frac) > weiDecimals {
		frac = frac[:weiDecimals]
	}
	for len(frac) < weiDecimals {
		frac += "0"
	}

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", s)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string with trailing zeros
// trimmed.
func FormatEther(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(weiDecimals), nil)
	whole, frac := new(big.Int).QuoRem(wei, base, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	f := fmt.Sprintf("%018s", frac.String())
	f = strings.TrimRight(f, "0")
	return whole.String() + "." + f
}
