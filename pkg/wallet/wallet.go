// ============================================================================
// Wallet Reference Domain
// ============================================================================
//
// Package: pkg/wallet
// Purpose: A complete host-side wiring of the engine contracts
//
// Credit/debit operations against per-account balances. Used by the demo
// binary, the CLI's run command and the integration tests; embedders with
// their own domain replace this package wholesale.
//
// Amounts are int64 in the ledger's minimum unit (e.g. ten-thousandths of
// the display currency). Conversion to and from decimals happens outside
// the engine.
//
// ============================================================================

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vevoly/atomic-ledger/pkg/types"
)

// OpTypeKey tags wallet operations inside WAL records.
const OpTypeKey = "wallet.op"

// Operation kinds
const (
	KindCredit = "credit"
	KindDebit  = "debit"
)

// ErrInsufficientFunds rejects a debit that would overdraw the account.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// Op is one credit or debit attempt.
type Op struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	Kind        string `json:"kind"`
	AmountMinor int64  `json:"amount_minor"`
}

// TxID implements types.Command.
func (o *Op) TxID() string { return o.ID }

// RoutingKey implements types.Command. The account is the aggregate.
func (o *Op) RoutingKey() string { return o.Account }

// TypeKey implements types.Command.
func (o *Op) TypeKey() string { return OpTypeKey }

// Encode implements types.Command.
func (o *Op) Encode() ([]byte, error) { return json.Marshal(o) }

// Credit builds a credit attempt with a fresh transaction ID.
func Credit(account string, amountMinor int64) *Op {
	return &Op{ID: uuid.NewString(), Account: account, Kind: KindCredit, AmountMinor: amountMinor}
}

// Debit builds a debit attempt with a fresh transaction ID.
func Debit(account string, amountMinor int64) *Op {
	return &Op{ID: uuid.NewString(), Account: account, Kind: KindDebit, AmountMinor: amountMinor}
}

// Movement is the persistable delta of one applied operation.
type Movement struct {
	TxID         string `json:"tx_id"`
	Account      string `json:"account"`
	DeltaMinor   int64  `json:"delta_minor"`
	BalanceMinor int64  `json:"balance_minor"`
}

// Balances is the partition state: account → balance in minimum units.
type Balances map[string]int64

// Processor applies wallet operations.
type Processor struct{}

// Process implements types.Processor.
func (Processor) Process(state types.State, cmd types.Command) (types.Entity, error) {
	balances, ok := state.(Balances)
	if !ok {
		return nil, fmt.Errorf("wallet: unexpected state type %T", state)
	}
	op, ok := cmd.(*Op)
	if !ok {
		return nil, fmt.Errorf("wallet: unexpected command type %T", cmd)
	}

	var delta int64
	switch op.Kind {
	case KindCredit:
		delta = op.AmountMinor
	case KindDebit:
		if balances[op.Account] < op.AmountMinor {
			return nil, fmt.Errorf("%w: account %s has %d, debit of %d",
				ErrInsufficientFunds, op.Account, balances[op.Account], op.AmountMinor)
		}
		delta = -op.AmountMinor
	default:
		return nil, fmt.Errorf("wallet: unknown operation kind %q", op.Kind)
	}

	balances[op.Account] += delta
	return &Movement{
		TxID:         op.ID,
		Account:      op.Account,
		DeltaMinor:   delta,
		BalanceMinor: balances[op.Account],
	}, nil
}

// Bootstrap wires the wallet domain into the engine.
type Bootstrap struct{}

// InitialState implements types.Bootstrap.
func (Bootstrap) InitialState() types.State {
	return Balances{}
}

// EncodeState implements types.Bootstrap.
func (Bootstrap) EncodeState(s types.State) ([]byte, error) {
	balances, ok := s.(Balances)
	if !ok {
		return nil, fmt.Errorf("wallet: unexpected state type %T", s)
	}
	return json.Marshal(balances)
}

// DecodeState implements types.Bootstrap.
func (Bootstrap) DecodeState(data []byte) (types.State, error) {
	balances := Balances{}
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("wallet: corrupt state: %w", err)
	}
	return balances, nil
}

// Decoders implements types.Bootstrap.
func (Bootstrap) Decoders() types.DecoderRegistry {
	return types.DecoderRegistry{
		OpTypeKey: func(data []byte) (types.Command, error) {
			var op Op
			if err := json.Unmarshal(data, &op); err != nil {
				return nil, fmt.Errorf("wallet: corrupt operation: %w", err)
			}
			return &op, nil
		},
	}
}
