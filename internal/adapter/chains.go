package adapter

import (
	"github.com/wallet-watch/internal/types"
)

// ChainInfo describes an Etherscan v2 supported network
type ChainInfo struct {
	Chain       types.ChainID
	ID          int
	NativeAsset string
	ExplorerURL string
}

var chainsByID = map[int]ChainInfo{
	1:     {Chain: types.ChainEthereum, ID: 1, NativeAsset: "ETH", ExplorerURL: "https://etherscan.io"},
	137:   {Chain: types.ChainPolygon, ID: 137, NativeAsset: "POL", ExplorerURL: "https://polygonscan.com"},
	42161: {Chain: types.ChainArbitrum, ID: 42161, NativeAsset: "ETH", ExplorerURL: "https://arbiscan.io"},
	10:    {Chain: types.ChainOptimism, ID: 10, NativeAsset: "ETH", ExplorerURL: "https://optimistic.etherscan.io"},
	8453:  {Chain: types.ChainBase, ID: 8453, NativeAsset: "ETH", ExplorerURL: "https://basescan.org"},
	56:    {Chain: types.ChainBNB, ID: 56, NativeAsset: "BNB", ExplorerURL: "https://bscscan.com"},
}

// LookupChain returns the chain for an Etherscan chain id, defaulting to mainnet
func LookupChain(id int) ChainInfo {
	if info, ok := chainsByID[id]; ok {
		return info
	}
	return chainsByID[1]
}

// TxURL returns the explorer page for a transaction hash
func (c ChainInfo) TxURL(hash string) string {
	return c.ExplorerURL + "/tx/" + hash
}
