package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"olmera/internal/crypto"
	"olmera/internal/domain"
)

func importCmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "import <snapshot-file>",
		Short: "Replace local state with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if passphrase != "" {
				raw, err = crypto.OpenWithPassphrase(passphrase, string(raw))
				if err != nil {
					return err
				}
			}
			var state domain.ExportedState
			if err := json.Unmarshal(raw, &state); err != nil {
				return err
			}
			if err := wire.Device.Import(state); err != nil {
				return err
			}
			fmt.Printf("Imported %d sessions.\n", len(state.Sessions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase the snapshot was sealed with")
	return cmd
}
