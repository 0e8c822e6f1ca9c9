package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"peerlink/internal/app"
)

var (
	home       string
	passphrase string
	port       int
	downloads  string
	verbose    bool

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "peerlink",
		Short: "Peer-to-peer end-to-end encrypted chat and file transfer",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".peerlink")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:         home,
				Port:         port,
				DownloadsDir: downloads,
				Verbose:      verbose,
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if wire != nil {
				wire.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.peerlink)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity key")
	root.PersistentFlags().IntVar(&port, "port", app.DefaultPort, "TCP listen port")
	root.PersistentFlags().StringVar(&downloads, "downloads", app.DefaultDownloadsDir, "directory for received files")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(initCmd(), fingerprintCmd(), chatCmd())
	return root.Execute()
}
