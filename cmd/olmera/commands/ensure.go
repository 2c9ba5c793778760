package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"olmera/internal/domain"
)

// ensureCmd claims one-time keys for the listed devices and establishes
// outbound sessions with them.
func ensureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <user> <device-key>...",
		Short: "Establish sessions with remote devices",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Ensurer == nil {
				return fmt.Errorf("ensure requires --claim-url")
			}
			user := domain.UserID(args[0])
			devices := make([]domain.DeviceKey, 0, len(args)-1)
			for _, a := range args[1:] {
				devices = append(devices, domain.DeviceKey(a))
			}

			result, err := wire.Ensurer.EnsureSessions(cmd.Context(), map[domain.UserID][]domain.DeviceKey{
				user: devices,
			})
			if err != nil {
				return err
			}
			for key, r := range result[user] {
				switch {
				case r.Err != nil:
					fmt.Printf("%s: failed: %v\n", key, r.Err)
				case r.AlreadyHad:
					fmt.Printf("%s: session %s (existing)\n", key, r.SessionID)
				default:
					fmt.Printf("%s: session %s\n", key, r.SessionID)
				}
			}
			return nil
		},
	}
}
