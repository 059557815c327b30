package wire

// NamespaceConfig describes what a connection request asks of one namespace.
type NamespaceConfig struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ConnectRequest names the namespaces a connection must grant.
type ConnectRequest struct {
	RequiredNamespaces map[Namespace]NamespaceConfig `json:"requiredNamespaces"`
}

// ConnectionResult is the wallet's answer to a successful handshake. It is
// immutable once produced; façades cache it until disconnect.
type ConnectionResult struct {
	Accounts map[Namespace][]string `json:"accounts"`
	Chains   map[Namespace]string   `json:"chains"`
	Methods  []string               `json:"methods"`
}

// Chain identifiers in CAIP-2 form. Connection requests always name the
// mainnet and testnet variant of a selected chain together.
const (
	ChainEthereum      = "eip155:1"
	ChainSepolia       = "eip155:11155111"
	ChainSolanaMainnet = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	ChainSolanaDevnet  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

var testnetOf = map[string]string{
	ChainEthereum:      ChainSepolia,
	ChainSolanaMainnet: ChainSolanaDevnet,
}

// WithTestnets expands a chain list so every selected mainnet chain is
// accompanied by its testnet variant. Chains without a known pair and chains
// already present are passed through once.
func WithTestnets(chains []string) []string {
	out := make([]string, 0, len(chains)*2)
	seen := map[string]bool{}
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range chains {
		add(c)
		add(testnetOf[c])
	}
	return out
}
