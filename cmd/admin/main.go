package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/registration-client/api/clients"
	"github.com/ruteri/registration-client/httpserver"
	"github.com/urfave/cli/v2"
)

var flagStubServer *cli.StringFlag = &cli.StringFlag{
	Name:    "stub-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "Entitlement stub address to request",
	EnvVars: []string{"STUB_ADDR"},
}
var flagAdminPrivkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "Path to admin private key",
}
var flagAdminPubkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "Path to admin public key",
}
var flagAdminKeys *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-keys-file",
	Value: "admin-keys.json",
	Usage: "Path to the stub's admin keys file",
}

type adminMetadata struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

func main() {
	signedFlags := []cli.Flag{flagStubServer, flagAdminPrivkey, flagAdminPubkey}

	app := &cli.App{
		Name:           "admin client",
		Usage:          "Administer an entitlement stub",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show counts of systems, registration codes and products",
				Flags: signedFlags,
				Action: func(cCtx *cli.Context) error {
					adminClient, err := newAdminClient(cCtx)
					if err != nil {
						return err
					}
					status, err := adminClient.GetStatus()
					if err != nil {
						return err
					}

					fmt.Printf("systems: %d\nregcodes: %d\nproducts: %d\n", status.Systems, status.RegCodes, status.Products)
					return nil
				},
			},
			{
				Name:  "systems",
				Usage: "List announced systems",
				Flags: signedFlags,
				Action: func(cCtx *cli.Context) error {
					adminClient, err := newAdminClient(cCtx)
					if err != nil {
						return err
					}
					systems, err := adminClient.ListSystems()
					if err != nil {
						return err
					}

					for _, s := range systems {
						fmt.Printf("%s\t%s\t%v\n", s.Login, s.Hostname, s.Products)
					}
					return nil
				},
			},
			{
				Name:      "remove-system",
				Usage:     "Deregister a system",
				ArgsUsage: "<login>",
				Flags:     signedFlags,
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected exactly one login")
					}
					adminClient, err := newAdminClient(cCtx)
					if err != nil {
						return err
					}
					return adminClient.RemoveSystem(cCtx.Args().First())
				},
			},
			{
				Name:      "add-regcode",
				Usage:     "Accept a registration code",
				ArgsUsage: "<regcode>",
				Flags:     signedFlags,
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected exactly one registration code")
					}
					adminClient, err := newAdminClient(cCtx)
					if err != nil {
						return err
					}
					return adminClient.AddRegCode(cCtx.Args().First())
				},
			},
			{
				Name:      "remove-regcode",
				Usage:     "Stop accepting a registration code",
				ArgsUsage: "<regcode>",
				Flags:     signedFlags,
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected exactly one registration code")
					}
					adminClient, err := newAdminClient(cCtx)
					if err != nil {
						return err
					}
					return adminClient.RemoveRegCode(cCtx.Args().First())
				},
			},
			{
				Name:  "generate-admin",
				Usage: "Generate an admin key pair",
				Flags: []cli.Flag{
					flagAdminPrivkey,
					flagAdminPubkey,
				},
				Action: func(cCtx *cli.Context) error {
					privateKeyPEM, publicKeyPEM, err := httpserver.GenerateAdminKeyPair()
					if err != nil {
						return err
					}

					if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), []byte(privateKeyPEM), 0600); err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminPubkey.Name), []byte(publicKeyPEM), 0600)
				},
			},
			{
				Name:  "generate-admin-keys",
				Usage: "Write the stub's admin keys file from admin public keys",
				Flags: []cli.Flag{
					flagAdminKeys,
					&cli.StringSliceFlag{
						Name:  "admin-pubkey-files",
						Usage: "admin public keys to list",
					},
				},
				Action: func(cCtx *cli.Context) error {
					var config struct {
						Admins []adminMetadata `json:"admins"`
					}

					for _, pubkey := range cCtx.StringSlice("admin-pubkey-files") {
						publicKeyPEM, err := os.ReadFile(pubkey)
						if err != nil {
							return err
						}
						config.Admins = append(config.Admins, adminMetadata{
							ID:     adminID(publicKeyPEM),
							PubKey: string(publicKeyPEM),
						})
					}

					configBytes, err := json.MarshalIndent(config, "", "  ")
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminKeys.Name), configBytes, 0600)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// adminID identifies an admin by the SHA-256 of its public key PEM.
func adminID(publicKeyPEM []byte) string {
	h := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(h[:])
}

func newAdminClient(cCtx *cli.Context) (*clients.AdminClient, error) {
	publicKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPubkey.Name))
	if err != nil {
		return nil, err
	}

	privateKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return nil, err
	}

	privateKey, err := httpserver.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return clients.NewAdminClient(cCtx.String(flagStubServer.Name), adminID(publicKeyPEM), privateKey), nil
}
