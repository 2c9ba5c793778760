package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"olmera/internal/crypto"
)

func exportCmd() *cobra.Command {
	var out string
	var passphrase string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a full state snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := wire.Device.Export()
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			if passphrase != "" {
				sealed, err := crypto.SealWithPassphrase(passphrase, raw)
				if err != nil {
					return err
				}
				raw = []byte(sealed)
			}
			if out == "" {
				fmt.Println(string(raw))
				return nil
			}
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "seal the snapshot with a passphrase")
	return cmd
}
