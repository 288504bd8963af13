package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
)

// inBootstrap reports whether a chain of the specified length is still
// inside the bootstrap allowance. While it is, the outputs a transaction
// spends are not required to exist in the chain. Signatures are always
// checked.
func (s *State) inBootstrap(length uint64) bool {
	return length <= s.genesis.BootstrapHeight
}

// admitTransaction runs the pool admission rules and adds the transaction
// to the pool.
func (s *State) admitTransaction(tx database.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mempool.Contains(tx.ID()) {
		return ErrDuplicate
	}

	if err := tx.Validate(); err != nil {
		return err
	}

	switch utxo.Classify(tx) {
	case utxo.KindCoinbase:
		return ErrCoinbaseMisplaced

	case utxo.KindBasic:
		if err := tx.VerifySignature(); err != nil {
			return err
		}
		if err := s.checkAvailability(tx, s.inBootstrap(uint64(s.chain.Len())), s.mempool.HasOutput); err != nil {
			return err
		}

	default:
		if err := tx.VerifySignature(); err != nil {
			return err
		}
	}

	s.mempool.Add(tx)
	s.updateGauges()

	return nil
}

// checkAvailability checks every output the transaction spends exists in
// the chain and is not spent by the chain. Inside the bootstrap allowance
// the outputs are not required to exist, but they still can not be spent
// twice. Outputs for which used reports true are refused as spent
// elsewhere.
func (s *State) checkAvailability(tx database.Tx, bootstrap bool, used func(op database.OutPoint) bool) error {
	for _, in := range tx.Inputs {
		op := in.OutPoint()

		if !bootstrap && !s.chain.IsValidOutput(op) {
			return fmt.Errorf("%w: %s", ErrUnknownOutput, op)
		}

		if s.chain.HasSpent(op) {
			return fmt.Errorf("%w: %s in chain", ErrDoubleSpend, op)
		}

		if used != nil && used(op) {
			return fmt.Errorf("%w: %s in pool", ErrDoubleSpend, op)
		}
	}

	return nil
}

// checkBlockTransactions validates the transactions of a block received
// from a peer that links to the current head. A coinbase may only be the
// first transaction and must pay exactly the fees plus the subsidy.
func (s *State) checkBlockTransactions(blk database.Block) error {
	reward := mempool.TotalFee(blk.Transactions) + s.genesis.Subsidy
	spent := make(map[database.OutPoint]bool)

	for i, tx := range blk.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}

		switch utxo.Classify(tx) {
		case utxo.KindCoinbase:
			if i != 0 {
				return fmt.Errorf("tx %d: %w", i, ErrCoinbaseMisplaced)
			}
			if v := tx.Outputs[0].Value; v != reward {
				return fmt.Errorf("%w: got %d, exp %d", ErrInvalidReward, v, reward)
			}

		case utxo.KindBasic:
			if err := tx.VerifySignature(); err != nil {
				return fmt.Errorf("tx %d: %w", i, err)
			}
			for _, in := range tx.Inputs {
				op := in.OutPoint()
				if spent[op] {
					return fmt.Errorf("tx %d: %w: %s twice in block", i, ErrDoubleSpend, op)
				}
				spent[op] = true
			}
			if err := s.checkAvailability(tx, s.inBootstrap(blk.Index), nil); err != nil {
				return fmt.Errorf("tx %d: %w", i, err)
			}

		default:
			if err := tx.VerifySignature(); err != nil {
				return fmt.Errorf("tx %d: %w", i, err)
			}
		}
	}

	return nil
}

// purgePool drops the pending transactions the chain already carries and
// the ones that no longer pass the availability rules against the current
// chain, such as transactions recovered from orphaned blocks that spend
// outputs only those blocks produced. Of two pending transactions spending
// the same output the earlier one is kept. The caller must hold s.mu.
func (s *State) purgePool() {
	pending := s.chain.RemoveUselessTransactions(s.mempool.Copy())
	bootstrap := s.inBootstrap(uint64(s.chain.Len()))

	used := make(map[database.OutPoint]bool)
	isUsed := func(op database.OutPoint) bool { return used[op] }

	keep := make([]database.Tx, 0, len(pending))
	for _, tx := range pending {
		if utxo.Classify(tx) == utxo.KindBasic {
			if err := s.checkAvailability(tx, bootstrap, isUsed); err != nil {
				s.evHandler("state: purgePool: dropping %s: %s", tx, err)
				continue
			}
			for _, in := range tx.Inputs {
				used[in.OutPoint()] = true
			}
		}
		keep = append(keep, tx)
	}

	s.mempool.Renew(keep)
	s.updateGauges()
}

// rejectReason maps an admission error to a metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrDoubleSpend):
		return "double_spend"
	case errors.Is(err, ErrUnknownOutput):
		return "unknown_output"
	case errors.Is(err, ErrCoinbaseMisplaced), errors.Is(err, ErrInvalidReward):
		return "coinbase"
	case errors.Is(err, database.ErrMalformedTx), errors.Is(err, database.ErrNegativeFee), errors.Is(err, database.ErrOverflow):
		return "malformed"
	}

	return "signature"
}
