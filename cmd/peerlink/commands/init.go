package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
)

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an identity key and store it securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if name == "" {
				return fmt.Errorf("display name required (--name)")
			}
			if wire.Identity.Exists() {
				return fmt.Errorf("identity already exists in %s", home)
			}

			priv, pub, err := crypto.GenerateX25519()
			if err != nil {
				return err
			}
			id := domain.Identity{Priv: priv, Pub: pub, Name: name}
			if err := wire.Identity.Save(passphrase, id); err != nil {
				return err
			}
			fmt.Printf("Identity created for %s.\nFingerprint: %s\n", name, crypto.Fingerprint(pub[:]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name shown to peers")
	return cmd
}
