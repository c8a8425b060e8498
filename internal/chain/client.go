// Package chain is the boundary to the external chain client. The wallet
// core delegates fee estimation, transaction normalization, and broadcast
// here; it never performs chain I/O anywhere else.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// FeeSuggestion is the fee data used to prepare a transaction. Legacy is
// set when the chain does not support EIP-1559 dynamic fees.
type FeeSuggestion struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasPrice  *big.Int
	Legacy    bool
}

// Client is the external chain-client collaborator.
type Client interface {
	ChainID() *big.Int
	Balance(ctx context.Context, address string) (*big.Int, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SuggestFees(ctx context.Context) (*FeeSuggestion, error)
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
	Broadcast(ctx context.Context, signedTx *ethtypes.Transaction) (string, error)
}

// EthClient is the ethclient-backed Client implementation.
type EthClient struct {
	client  *ethclient.Client
	chainID *big.Int
}

// NewEthClient dials an EVM RPC endpoint and auto-detects the chain ID
func NewEthClient(rpcURL string) (*EthClient, error) {
	if rpcURL == "" {
		return nil, apperrors.ErrBadRequest.WithDetail("RPC URL is required")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, apperrors.ChainClient("dial", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		return nil, apperrors.ChainClient("chain id detection", err)
	}

	return &EthClient{client: client, chainID: chainID}, nil
}

// ChainID returns the detected chain ID
func (c *EthClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Balance returns the current balance of an address in wei
func (c *EthClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, apperrors.ChainClient("balance lookup", err)
	}
	return balance, nil
}

// PendingNonce returns the next nonce for an address
func (c *EthClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, apperrors.ChainClient("nonce lookup", err)
	}
	return nonce, nil
}

// SuggestFees returns EIP-1559 fee caps, falling back to a legacy gas price
// on chains without dynamic fees
func (c *EthClient) SuggestFees(ctx context.Context) (*FeeSuggestion, error) {
	tipCap, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		gasPrice, gpErr := c.client.SuggestGasPrice(ctx)
		if gpErr != nil {
			return nil, apperrors.ChainClient("fee estimation", gpErr)
		}
		return &FeeSuggestion{GasPrice: gasPrice, Legacy: true}, nil
	}

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, apperrors.ChainClient("fee estimation", err)
	}

	// feeCap = 2*baseFee + tip, the usual headroom against base-fee drift.
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tipCap,
	)

	return &FeeSuggestion{GasTipCap: tipCap, GasFeeCap: feeCap}, nil
}

// EstimateGas estimates the gas for a transaction with a 20% safety buffer.
// An empty 'to' is treated as a contract deployment.
func (c *EthClient) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(from),
		Value: value,
		Data:  data,
	}
	if to != "" {
		toAddr := common.HexToAddress(to)
		msg.To = &toAddr
	}

	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, apperrors.ChainClient("gas estimation", err)
	}

	return gas * 120 / 100, nil
}

// Broadcast sends a signed transaction to the network and returns its hash
func (c *EthClient) Broadcast(ctx context.Context, signedTx *ethtypes.Transaction) (string, error) {
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", apperrors.ChainClient("broadcast", err)
	}
	return signedTx.Hash().Hex(), nil
}

// Close closes the client connection
func (c *EthClient) Close() {
	c.client.Close()
}
