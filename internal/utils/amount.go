package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
}

// SOLToLamports converts a SOL amount to lamports. Fractions of a lamport are
// rejected rather than rounded.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", sol)
	}
	lamports := sol.Mul(lamportsPerSOL)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("amount %s SOL is not a whole number of lamports", sol)
	}
	if lamports.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("amount %s SOL overflows lamports", sol)
	}
	return lamports.BigInt().Uint64(), nil
}

// ParseSOL parses a decimal SOL string such as "0.1" into lamports.
func ParseSOL(raw string) (uint64, error) {
	sol, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", raw, err)
	}
	return SOLToLamports(sol)
}
