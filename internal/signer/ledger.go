package signer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/base/validation-tool/internal/logger"
)

// Ledger signs on a Ledger hardware wallet through go-ethereum's usbwallet
// driver. Every call opens the device and closes it again.
type Ledger struct {
	lggr        logger.Logger
	hdPath      func(accountIndex int) string
	deviceIndex int

	wallets func() ([]accounts.Wallet, error)
}

func NewLedger(lggr logger.Logger, hdPath func(accountIndex int) string, deviceIndex int) *Ledger {
	return &Ledger{
		lggr:        lggr.Named("ledger"),
		hdPath:      hdPath,
		deviceIndex: deviceIndex,
		wallets:     ledgerWallets,
	}
}

func ledgerWallets() ([]accounts.Wallet, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("error starting ledger: %w", err)
	}
	return hub.Wallets(), nil
}

func (l *Ledger) GetAddress(ctx context.Context, accountIndex int) (common.Address, error) {
	var addr common.Address
	err := l.withAccount(ctx, accountIndex, func(_ accounts.Wallet, account accounts.Account) error {
		addr = account.Address
		return nil
	})
	return addr, err
}

// Sign has the device sign the payload as EIP-712 typed data, so the signer
// sees the domain and message hashes on screen.
func (l *Ledger) Sign(ctx context.Context, req SignRequest) (Signature, error) {
	data, err := req.Payload()
	if err != nil {
		return Signature{}, err
	}

	var out Signature
	err = l.withAccount(ctx, req.AccountIndex, func(wallet accounts.Wallet, account accounts.Account) error {
		l.lggr.Infow("confirm the signature on your device", "account", account.Address.Hex())
		sig, err := wallet.SignData(account, accounts.MimetypeTypedData, data)
		if err != nil {
			return classify(fmt.Errorf("error signing data: %w", err))
		}
		out = Signature{Signature: hexutil.Encode(normalizeV(sig)), SignerAddress: account.Address.Hex()}
		return nil
	})
	return out, err
}

func (l *Ledger) withAccount(ctx context.Context, accountIndex int, fn func(accounts.Wallet, accounts.Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := accounts.ParseDerivationPath(l.hdPath(accountIndex))
	if err != nil {
		return err
	}

	wallets, err := l.wallets()
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return ErrNoDevice
	}
	if len(wallets) > 1 {
		l.lggr.Warnw("multiple ledgers connected", "count", len(wallets), "using", l.deviceIndex)
	}
	if l.deviceIndex < 0 || l.deviceIndex >= len(wallets) {
		return fmt.Errorf("%w: device index %d out of range", ErrNoDevice, l.deviceIndex)
	}

	wallet := wallets[l.deviceIndex]
	if err := wallet.Open(""); err != nil {
		return classify(fmt.Errorf("error opening ledger: %w", err))
	}
	defer func() {
		if err := wallet.Close(); err != nil {
			l.lggr.Debugw("closing ledger", "err", err)
		}
	}()

	account, err := wallet.Derive(path, true)
	if err != nil {
		return classify(fmt.Errorf("error deriving ledger account: %w", err))
	}
	return fn(wallet, account)
}

// classify tags raw driver errors with the device sentinels.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "reply lacks public key entry"), strings.Contains(msg, "locked"):
		return fmt.Errorf("%w: %w", ErrDeviceLocked, err)
	case strings.Contains(msg, "denied"), strings.Contains(msg, "6985"):
		return fmt.Errorf("%w: %w", ErrDenied, err)
	}
	return err
}
