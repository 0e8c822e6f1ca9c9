package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerlink/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Identity.Load(passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(id.Pub[:]))
			return nil
		},
	}
}
