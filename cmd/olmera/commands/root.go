package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"olmera/internal/app"
)

var (
	home     string
	backend  string
	claimURL string
	wire     *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "olmera",
		Short: "Session-management layer for end-to-end encrypted messaging",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".olmera")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			w, err := app.NewWire(app.Config{
				Home:     home,
				Backend:  backend,
				ClaimURL: claimURL,
			})
			if err != nil {
				return err
			}
			wire = w
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.olmera)")
	root.PersistentFlags().StringVar(&backend, "backend", app.BackendFile, "session store backend (file or sqlite)")
	root.PersistentFlags().StringVar(&claimURL, "claim-url", "", "key-claiming service base URL")

	root.AddCommand(initCmd(), fingerprintCmd(), keysCmd(), ensureCmd(), exportCmd(), importCmd())
	return root.Execute()
}
