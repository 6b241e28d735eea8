// Package fee holds the deal arithmetic. All amounts are integers in the
// settlement token's smallest unit; nothing here touches floating point.
package fee

import (
	"strings"

	"github.com/escrowroom/escrowroom/internal/domain/room"
)

// Rate is the fixed service fee: 1% of the deal amount, truncated.
const Rate = 100

// Fee returns the service fee for a deal amount.
func Fee(amount int64) int64 {
	return amount / Rate
}

// DepositAmount is what the sender must transfer for the deal to fund.
func DepositAmount(amount, fee int64, payer room.FeePayer) int64 {
	switch payer {
	case room.FeePayerSender:
		return amount + fee
	case room.FeePayerReceiver:
		return amount
	case room.FeePayerSplit:
		// fee/2 truncates toward zero; with an odd fee the one-unit
		// remainder stays with the ledger rather than either party.
		return amount + fee/2
	}
	return amount
}

// PayoutAmount is what the receiver is paid on release.
func PayoutAmount(amount, fee int64, payer room.FeePayer) int64 {
	switch payer {
	case room.FeePayerSender:
		return amount
	case room.FeePayerReceiver:
		return amount - fee
	case room.FeePayerSplit:
		return amount - fee/2
	}
	return amount
}

// ParseAmount converts a human decimal string like "100.00" into smallest
// units for a token with the given fixed decimal count. The amount must be
// positive and carry no more fractional digits than the token supports.
func ParseAmount(input string, decimals int) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, room.Validation("amount is required")
	}
	if decimals < 0 || decimals > 18 {
		return 0, room.Validation("unsupported token decimals: %d", decimals)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, room.Validation("malformed amount %q", input)
	}
	if len(frac) > decimals {
		return 0, room.Validation("amount %q exceeds %d decimal places", input, decimals)
	}
	for len(frac) < decimals {
		frac += "0"
	}

	units := int64(0)
	for _, c := range whole + frac {
		if c < '0' || c > '9' {
			return 0, room.Validation("malformed amount %q", input)
		}
		d := int64(c - '0')
		if units > (1<<62)/10 {
			return 0, room.Validation("amount %q is too large", input)
		}
		units = units*10 + d
	}
	if units <= 0 {
		return 0, room.Validation("amount must be positive")
	}
	return units, nil
}
