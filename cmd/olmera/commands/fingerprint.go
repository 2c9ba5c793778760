package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"olmera/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := base64.StdEncoding.DecodeString(wire.Device.IdentityKeys().Curve25519)
			if err != nil {
				return err
			}
			fmt.Println(crypto.Fingerprint(raw))
			return nil
		},
	}
}
