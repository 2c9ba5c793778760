package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"olmera/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local device account",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := wire.Device.IdentityKeys()
			raw, err := base64.StdEncoding.DecodeString(keys.Curve25519)
			if err != nil {
				return err
			}
			fmt.Printf("Device ready.\nCurve25519: %s\nEd25519:    %s\nFingerprint: %s\n",
				keys.Curve25519, keys.Ed25519, crypto.Fingerprint(raw))
			return nil
		},
	}
}
