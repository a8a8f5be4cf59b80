package chain

import (
	"strings"
	"sync"
)

// Preset carries display metadata for a chain, keyed by the chain id the
// streams provider sends (hex string like "0x1" or decimal like "137").
type Preset struct {
	ChainID       string
	Name          string // Human-readable name used in sink messages
	NativeSymbol  string
	NativeDecimal int
}

var (
	registry = make(map[string]Preset)
	mu       sync.RWMutex
)

// Register adds a chain preset to the global registry.
func Register(id string, p Preset) {
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(id)] = p
}

// Get retrieves a preset by chain id (hex or decimal form).
func Get(id string) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[normalize(id)]
	return p, ok
}

// DisplayName returns the chain's human-readable name, falling back to the
// raw id for chains nobody registered.
func DisplayName(id string) string {
	if p, ok := Get(id); ok {
		return p.Name
	}
	return id
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Built-in presets
func init() {
	eth := Preset{ChainID: "1", Name: "Ethereum", NativeSymbol: "ETH", NativeDecimal: 18}
	Register("0x1", eth)
	Register("1", eth)

	bsc := Preset{ChainID: "56", Name: "BNB Chain", NativeSymbol: "BNB", NativeDecimal: 18}
	Register("0x38", bsc)
	Register("56", bsc)

	polygon := Preset{ChainID: "137", Name: "Polygon", NativeSymbol: "POL", NativeDecimal: 18}
	Register("0x89", polygon)
	Register("137", polygon)

	arbitrum := Preset{ChainID: "42161", Name: "Arbitrum One", NativeSymbol: "ETH", NativeDecimal: 18}
	Register("0xa4b1", arbitrum)
	Register("42161", arbitrum)
}
