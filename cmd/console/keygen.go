package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-sql-console/internal/config"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the RSA key pair used to sign session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.New()
		privateFile, _ := cmd.Flags().GetString("private-key")
		publicFile, _ := cmd.Flags().GetString("public-key")
		bits, _ := cmd.Flags().GetInt("bits")
		force, _ := cmd.Flags().GetBool("force")
		if privateFile == "" {
			privateFile = c.GetTokenPrivateKeyFile()
		}
		if publicFile == "" {
			publicFile = c.GetTokenPublicKeyFile()
		}

		if !force {
			if _, err := os.Stat(privateFile); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", privateFile)
			}
		}

		for _, file := range []string{privateFile, publicFile} {
			if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
				return fmt.Errorf("create key directory: %w", err)
			}
		}

		kp, err := keys.GenerateRSAKeyPair(tokenKeyID, bits)
		if err != nil {
			return err
		}
		if err := keys.WriteKeyPairFiles(kp, privateFile, publicFile); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privateFile, publicFile)
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("private-key", "", "Private key file (env: TOKEN_PRIVATE_KEY_FILE)")
	keygenCmd.Flags().String("public-key", "", "Public key file (env: TOKEN_PUBLIC_KEY_FILE)")
	keygenCmd.Flags().Int("bits", 2048, "RSA key size")
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing key pair")
}
