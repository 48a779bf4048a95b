package cmd

import (
	"errors"
	"fmt"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/sekia-ai/mailcmd/internal/secrets"
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage ENC[...] config values",
	}

	cmd.AddCommand(newSecretsKeygenCmd())
	cmd.AddCommand(newSecretsEncryptCmd())
	cmd.AddCommand(newSecretsDecryptCmd())

	return cmd
}

func newSecretsKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age identity for config encryption",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = secrets.DefaultKeyPath()
			}
			pub, err := secrets.GenerateKeyFile(output)
			if err != nil {
				return err
			}
			fmt.Printf("Key file written to: %s\n", output)
			fmt.Printf("Public key: %s\n", pub)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: ~/.config/mailcmd/age.key)")
	return cmd
}

func newSecretsEncryptCmd() *cobra.Command {
	var recipientKey string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value for mailcmd.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recipient age.Recipient
			if recipientKey != "" {
				r, err := secrets.ParseRecipient(recipientKey)
				if err != nil {
					return err
				}
				recipient = r
			} else {
				keyring, err := resolveKeyring()
				if err != nil {
					return err
				}
				if recipient, err = keyring.Recipient(); err != nil {
					return err
				}
			}

			enc, err := secrets.Encrypt(args[0], recipient)
			if err != nil {
				return err
			}
			fmt.Println(enc)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientKey, "recipient", "", "age public key (default: from the local identity)")
	return cmd
}

func newSecretsDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <ENC[...]>",
		Short: "Decrypt a value (for debugging)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := resolveKeyring()
			if err != nil {
				return err
			}
			plaintext, err := keyring.Decrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(plaintext)
			return nil
		},
	}
}

func resolveKeyring() (*secrets.Keyring, error) {
	keyring, err := secrets.DefaultResolver("").Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve age identity: %w", err)
	}
	if keyring == nil {
		return nil, errors.Join(secrets.ErrNoIdentity,
			fmt.Errorf("run 'mailcmd secrets keygen' or set %s / %s", secrets.EnvAgeKey, secrets.EnvAgeKeyFile))
	}
	return keyring, nil
}
