// Package ledger moves fungible token balances between accounts kept in the
// store, so every balance change joins the caller's store transaction.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// Ledger is the value-transfer service the vesting engine depends on.
type Ledger interface {
	Account(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error)
	Open(ctx context.Context, addr, mint, owner solana.PublicKey) (*model.TokenAccount, error)
	Deposit(ctx context.Context, addr solana.PublicKey, amount uint64) (*model.TokenAccount, error)
	Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error
	Close(ctx context.Context, addr, authority solana.PublicKey) error
}

// Book implements Ledger over a store.Store. Pass a transaction store to
// make transfers part of a larger atomic operation.
type Book struct {
	s store.Store
}

var _ Ledger = (*Book)(nil)

// New returns a Book backed by s.
func New(s store.Store) *Book {
	return &Book{s: s}
}

// Account returns the account at addr.
func (b *Book) Account(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return b.s.GetAccount(ctx, addr)
}

// Open creates an empty account for mint controlled by owner.
func (b *Book) Open(ctx context.Context, addr, mint, owner solana.PublicKey) (*model.TokenAccount, error) {
	if addr.IsZero() || mint.IsZero() || owner.IsZero() {
		return nil, model.ErrInvalidAccount
	}
	a := &model.TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if err := b.s.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Deposit credits amount to addr from outside the ledger.
func (b *Book) Deposit(ctx context.Context, addr solana.PublicKey, amount uint64) (*model.TokenAccount, error) {
	if amount == 0 {
		return nil, model.ErrInvalidAmount
	}
	var out *model.TokenAccount
	err := b.s.RunInTransaction(ctx, func(tx store.Store) error {
		a, err := tx.LockAccount(ctx, addr)
		if err != nil {
			return err
		}
		if a.Amount > math.MaxUint64-amount {
			return fmt.Errorf("deposit to %s: %w", addr, model.ErrMathOverflow)
		}
		a.Amount += amount
		if err := tx.SetAccountAmount(ctx, addr, a.Amount); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// Transfer moves amount from one account to another. authority must own the
// source account and both accounts must hold the same mint.
func (b *Book) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return model.ErrInvalidAmount
	}
	return b.s.RunInTransaction(ctx, func(tx store.Store) error {
		src, dst, err := lockPair(ctx, tx, from, to)
		if err != nil {
			return err
		}
		if !src.Owner.Equals(authority) {
			return fmt.Errorf("transfer from %s: %w", from, model.ErrAuthorityMismatch)
		}
		if !src.Mint.Equals(dst.Mint) {
			return fmt.Errorf("transfer %s -> %s: %w", from, to, model.ErrMintMismatch)
		}
		if src.Amount < amount {
			return fmt.Errorf("transfer %d from %s holding %d: %w", amount, from, src.Amount, model.ErrInsufficientFunds)
		}
		if from.Equals(to) {
			return nil
		}
		if dst.Amount > math.MaxUint64-amount {
			return fmt.Errorf("transfer to %s: %w", to, model.ErrMathOverflow)
		}
		if err := tx.SetAccountAmount(ctx, from, src.Amount-amount); err != nil {
			return err
		}
		return tx.SetAccountAmount(ctx, to, dst.Amount+amount)
	})
}

// Close deletes an empty account. authority must own it.
func (b *Book) Close(ctx context.Context, addr, authority solana.PublicKey) error {
	return b.s.RunInTransaction(ctx, func(tx store.Store) error {
		a, err := tx.LockAccount(ctx, addr)
		if err != nil {
			return err
		}
		if !a.Owner.Equals(authority) {
			return fmt.Errorf("close %s: %w", addr, model.ErrAuthorityMismatch)
		}
		if a.Amount != 0 {
			return fmt.Errorf("close %s holding %d: %w", addr, a.Amount, model.ErrAccountNotEmpty)
		}
		return tx.DeleteAccount(ctx, addr)
	})
}

// lockPair locks two accounts in address order so concurrent transfers over
// the same pair cannot deadlock.
func lockPair(ctx context.Context, tx store.Store, a, b solana.PublicKey) (*model.TokenAccount, *model.TokenAccount, error) {
	if a.Equals(b) {
		acc, err := tx.LockAccount(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		return acc, acc, nil
	}
	first, second := a, b
	swapped := bytes.Compare(a[:], b[:]) > 0
	if swapped {
		first, second = b, a
	}
	x, err := tx.LockAccount(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	y, err := tx.LockAccount(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if swapped {
		return y, x, nil
	}
	return x, y, nil
}
