package sink

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/84hero/stream-gateway/pkg/chain"
	"github.com/84hero/stream-gateway/pkg/event"
)

// TruncateAddress shortens a hex address for display: 0xdAC17F…31ec7.
// Short strings come back unchanged.
func TruncateAddress(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-5:]
}

// ScaleValue divides a raw decimal string by 10^decimals without ever
// leaving integer arithmetic, so token amounts beyond 64-bit range keep
// full precision. Trailing fractional zeros are trimmed.
func ScaleValue(value string, decimals int) string {
	if decimals <= 0 {
		return value
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return value
	}

	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(n, div, new(big.Int))

	rs := rem.String()
	if len(rs) < decimals {
		rs = strings.Repeat("0", decimals-len(rs)) + rs
	}
	frac := strings.TrimRight(rs, "0")
	if frac == "" {
		return quo.String()
	}
	return quo.String() + "." + frac
}

// amount renders the event's value scaled by its token decimals, with the
// token symbol (or name) appended when known.
func amount(ev event.TransferEvent) string {
	s := ScaleValue(ev.Value, ev.TokenDecimals)
	switch {
	case ev.TokenSymbol != "":
		return s + " " + ev.TokenSymbol
	case ev.TokenName != "":
		return s + " " + ev.TokenName
	}
	return s
}

// summary is the one-line rendition shared by the chat, social and email
// formatters.
func summary(ev event.TransferEvent) string {
	return fmt.Sprintf("%s moved from %s to %s on %s (tx %s)",
		amount(ev),
		TruncateAddress(ev.From),
		TruncateAddress(ev.To),
		chain.DisplayName(ev.ChainID),
		TruncateAddress(ev.TransactionHash),
	)
}
