package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	var generate int

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List (and optionally generate) one-time keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate > 0 {
				if _, err := wire.Device.GenerateOneTimeKeys(generate); err != nil {
					return err
				}
			}
			for _, k := range wire.Device.OneTimeKeys() {
				fmt.Printf("%s %s\n", k.ID, k.Key)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&generate, "generate", 0, "generate this many keys first")
	return cmd
}
