package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// PreparedTransaction is a normalized, fee-estimated transaction ready to
// be shown to the user and, on confirmation, signed.
type PreparedTransaction struct {
	ChainID   *big.Int
	From      common.Address
	To        *common.Address // nil for contract deployment
	Value     *big.Int
	Data      []byte
	Nonce     uint64
	Gas       uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasPrice  *big.Int // legacy chains only
	Legacy    bool

	// TotalCost is value plus the fee ceiling (gas * fee cap), the number
	// the trusted surface presents as the worst-case debit.
	TotalCost *big.Int

	// Balance is the sender's balance at preparation time. InsufficientFunds
	// is set when it cannot cover TotalCost; the warning is advisory and does
	// not block approval because the balance may change before broadcast.
	Balance           *big.Int
	InsufficientFunds bool
}

// IsContractCall reports whether the payload carries calldata
func (p *PreparedTransaction) IsContractCall() bool {
	return len(p.Data) > 0
}

// Prepare normalizes a raw payload (native transfer or contract call) into
// a PreparedTransaction: parses value and calldata, fetches the nonce,
// estimates gas and fees, and computes the total-cost summary.
func Prepare(ctx context.Context, client Client, payload types.TransactionPayload) (*PreparedTransaction, error) {
	if !common.IsHexAddress(payload.From) {
		return nil, apperrors.ErrBadRequest.WithDetail("invalid from address: " + payload.From)
	}
	if payload.To != "" && !common.IsHexAddress(payload.To) {
		return nil, apperrors.ErrBadRequest.WithDetail("invalid to address: " + payload.To)
	}

	value := big.NewInt(0)
	if payload.Value != "" {
		parsed, ok := new(big.Int).SetString(payload.Value, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, apperrors.ErrBadRequest.WithDetail("invalid value: " + payload.Value)
		}
		value = parsed
	}

	var data []byte
	if payload.Data != "" {
		decoded, err := hexutil.Decode(payload.Data)
		if err != nil {
			return nil, apperrors.ErrBadRequest.WithDetail("invalid calldata: " + err.Error())
		}
		data = decoded
	}

	if payload.To == "" && len(data) == 0 {
		return nil, apperrors.ErrBadRequest.WithDetail("transaction needs a recipient or calldata")
	}

	nonce, err := client.PendingNonce(ctx, payload.From)
	if err != nil {
		return nil, err
	}

	gas, err := client.EstimateGas(ctx, payload.From, payload.To, value, data)
	if err != nil {
		return nil, err
	}

	fees, err := client.SuggestFees(ctx)
	if err != nil {
		return nil, err
	}

	prepared := &PreparedTransaction{
		ChainID: client.ChainID(),
		From:    common.HexToAddress(payload.From),
		Value:   value,
		Data:    data,
		Nonce:   nonce,
		Gas:     gas,
		Legacy:  fees.Legacy,
	}
	if payload.To != "" {
		to := common.HexToAddress(payload.To)
		prepared.To = &to
	}

	var feeCeiling *big.Int
	if fees.Legacy {
		prepared.GasPrice = fees.GasPrice
		feeCeiling = new(big.Int).Mul(fees.GasPrice, new(big.Int).SetUint64(gas))
	} else {
		prepared.GasTipCap = fees.GasTipCap
		prepared.GasFeeCap = fees.GasFeeCap
		feeCeiling = new(big.Int).Mul(fees.GasFeeCap, new(big.Int).SetUint64(gas))
	}
	prepared.TotalCost = new(big.Int).Add(value, feeCeiling)

	balance, err := client.Balance(ctx, payload.From)
	if err != nil {
		return nil, err
	}
	prepared.Balance = balance
	prepared.InsufficientFunds = balance.Cmp(prepared.TotalCost) < 0

	return prepared, nil
}

// Summary is the human-facing cost breakdown for a prepared transaction.
type Summary struct {
	To         string `json:"to,omitempty"`
	ValueWei   string `json:"value_wei"`
	FeeWei     string `json:"fee_wei"`
	TotalWei   string `json:"total_wei"`
	GasLimit   uint64 `json:"gas_limit"`
	IsContract bool   `json:"is_contract_call"`

	BalanceWei        string `json:"balance_wei"`
	InsufficientFunds bool   `json:"insufficient_funds"`
}

// Summarize builds the cost summary the trusted surface presents
func (p *PreparedTransaction) Summarize() Summary {
	fee := new(big.Int).Sub(p.TotalCost, p.Value)
	s := Summary{
		ValueWei:          p.Value.String(),
		FeeWei:            fee.String(),
		TotalWei:          p.TotalCost.String(),
		GasLimit:          p.Gas,
		IsContract:        p.IsContractCall(),
		InsufficientFunds: p.InsufficientFunds,
	}
	if p.Balance != nil {
		s.BalanceWei = p.Balance.String()
	}
	if p.To != nil {
		s.To = p.To.Hex()
	}
	return s
}

// NormalizeAddress returns the checksum form of an address string
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", apperrors.ErrBadRequest.WithDetail("invalid address: " + address)
	}
	return common.HexToAddress(strings.TrimSpace(address)).Hex(), nil
}
