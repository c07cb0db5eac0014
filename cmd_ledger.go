package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/base/validation-tool/internal/signer"
)

// signerFlags selects the signer. The Ledger is used unless a private key or
// mnemonic is given.
type signerFlags struct {
	privateKey string
	mnemonic   string
	device     int
}

func (f *signerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.privateKey, "private-key", "", "Sign with this hex private key instead of a Ledger")
	cmd.Flags().StringVar(&f.mnemonic, "mnemonic", "", "Sign with this mnemonic instead of a Ledger")
	cmd.Flags().IntVar(&f.device, "device", 0, "Index of the Ledger when several are connected")
	cmd.MarkFlagsMutuallyExclusive("private-key", "mnemonic")
}

func (f *signerFlags) build(a *app) (signer.Signer, error) {
	switch {
	case f.privateKey != "":
		return signer.NewPrivateKeySigner(f.privateKey)
	case f.mnemonic != "":
		return signer.NewMnemonicSigner(f.mnemonic, a.cfg.HDPath)
	}
	return signer.NewLedger(a.lggr, a.cfg.HDPath, f.device), nil
}

func newLedgerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Hardware signer operations",
	}
	cmd.AddCommand(newLedgerAddressCmd(a), newLedgerSignCmd(a))
	return cmd
}

func newLedgerAddressCmd(a *app) *cobra.Command {
	var sf signerFlags
	var account int
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the address of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := sf.build(a)
			if err != nil {
				return err
			}
			addr, err := s.GetAddress(cmd.Context(), account)
			if err != nil {
				return deviceError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return nil
		},
	}
	sf.register(cmd)
	cmd.Flags().IntVar(&account, "account", 0, "Account index in the HD path")
	return cmd
}

func newLedgerSignCmd(a *app) *cobra.Command {
	var sf signerFlags
	var req signer.SignRequest
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an EIP-712 domain and message hash pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := req.Payload(); err != nil {
				return err
			}
			s, err := sf.build(a)
			if err != nil {
				return err
			}
			sig, err := s.Sign(cmd.Context(), req)
			if err != nil {
				return deviceError(err)
			}
			return writeJSON(cmd.OutOrStdout(), sig)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&req.DomainHash, "domain-hash", "", "EIP-712 domain hash")
	cmd.Flags().StringVar(&req.MessageHash, "message-hash", "", "EIP-712 message hash")
	cmd.Flags().IntVar(&req.AccountIndex, "account", 0, "Account index in the HD path")
	_ = cmd.MarkFlagRequired("domain-hash")
	_ = cmd.MarkFlagRequired("message-hash")
	return cmd
}

func deviceError(err error) error {
	if hint := signer.Remediation(err); hint != err.Error() {
		return fmt.Errorf("%s: %w", hint, err)
	}
	return err
}
