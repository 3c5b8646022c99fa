package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/registration-client/cmd/flags"
	"github.com/ruteri/registration-client/controlfile"
	"github.com/ruteri/registration-client/cryptoutils"
	"github.com/ruteri/registration-client/discovery"
	"github.com/ruteri/registration-client/fetch"
	"github.com/ruteri/registration-client/interfaces"
	"github.com/ruteri/registration-client/registration"
	"github.com/urfave/cli/v2"
)

var flagRegCode = &cli.StringFlag{
	Name:  "regcode",
	Usage: "registration code",
}
var flagEmail = &cli.StringFlag{
	Name:  "email",
	Usage: "contact email address",
}
var flagDistroTarget = &cli.StringFlag{
	Name:  "distro-target",
	Usage: "target distribution, e.g. sle-12-x86_64",
}

// product flags select a product; without --name the installed base product is used.
var productFlags = []cli.Flag{
	&cli.StringFlag{Name: "name", Usage: "product identifier"},
	&cli.StringFlag{Name: "version", Usage: "product version"},
	&cli.StringFlag{Name: "arch", Usage: "product architecture"},
	&cli.StringFlag{Name: "release-type", Usage: "product release type"},
	flagRegCode,
}

var flagCertInsecure = &cli.BoolFlag{
	Name:  "insecure-download",
	Usage: "do not verify the server when downloading a certificate URL",
}

func main() {
	app := &cli.App{
		Name:  "registration",
		Usage: "Register the system and its products with the entitlement service",
		Flags: append(append([]cli.Flag{flags.LogServiceFlagFn("registration")}, flags.LogFlags...), flags.RegistrationFlags...),
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "announce the system and store its credentials",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagRegCode.Name, Usage: flagRegCode.Usage, Required: true},
					flagEmail,
					flagDistroTarget,
				},
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						creds, err := env.session.Register(cCtx.Context, cCtx.String(flagEmail.Name), cCtx.String(flagRegCode.Name), cCtx.String(flagDistroTarget.Name))
						if err != nil {
							return err
						}
						fmt.Printf("Registered as %s, credentials stored in %s\n", creds.Login, env.creds.LocationURI())
						return nil
					})
				},
			},
			{
				Name:  "register-product",
				Usage: "activate a product and add its repository service",
				Flags: append([]cli.Flag{flagEmail}, productFlags...),
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					product, err := env.productRef(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						service, err := env.session.RegisterProduct(cCtx.Context, product, cCtx.String(flagEmail.Name))
						if err != nil {
							return err
						}
						return printJSON(service)
					})
				},
			},
			{
				Name:  "upgrade-product",
				Usage: "upgrade the system to a product",
				Flags: productFlags,
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					product, err := env.productRef(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						service, err := env.session.UpgradeProduct(cCtx.Context, product)
						if err != nil {
							return err
						}
						return printJSON(service)
					})
				},
			},
			{
				Name:  "update-system",
				Usage: "change the target distribution of the system",
				Flags: []cli.Flag{flagDistroTarget},
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						result, err := env.session.UpdateSystem(cCtx.Context, cCtx.String(flagDistroTarget.Name))
						if err != nil {
							return err
						}
						return printJSON(result)
					})
				},
			},
			{
				Name:  "addons",
				Usage: "list the addons available for the base product",
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						addons, err := env.session.GetAddonList(cCtx.Context)
						if err != nil {
							return err
						}
						return printJSON(addons)
					})
				},
			},
			{
				Name:  "activated",
				Usage: "list the products activated for the system",
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					return env.withTrustRetry(cCtx, func() error {
						products, err := env.session.ActivatedProducts(cCtx.Context)
						if err != nil {
							return err
						}
						return printJSON(products)
					})
				},
			},
			{
				Name:  "status",
				Usage: "show the local registration state",
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					services, err := env.packages.Services(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{
						"registered":  env.session.IsRegistered(),
						"credentials": env.creds.LocationURI(),
						"services":    services,
					})
				},
			},
			{
				Name:  "repos",
				Usage: "list or change the repositories of a service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Required: true, Usage: "service name"},
					&cli.BoolFlag{Name: "only-updates", Usage: "select update repositories only"},
					&cli.BoolFlag{Name: "enable", Usage: "enable the selected repositories"},
					&cli.BoolFlag{Name: "disable", Usage: "disable the selected repositories"},
				},
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					repos, err := env.packages.ServiceRepos(cCtx.Context, cCtx.String("service"), cCtx.Bool("only-updates"))
					if err != nil {
						return err
					}

					var enabled *bool
					switch {
					case cCtx.Bool("enable") && cCtx.Bool("disable"):
						return errors.New("--enable and --disable are exclusive")
					case cCtx.Bool("enable"):
						enabled = new(bool)
						*enabled = true
					case cCtx.Bool("disable"):
						enabled = new(bool)
					}
					if err := env.packages.SetReposState(cCtx.Context, repos, enabled); err != nil {
						return err
					}
					if enabled != nil {
						for i := range repos {
							repos[i].Enabled = *enabled
						}
					}
					return printJSON(repos)
				},
			},
			{
				Name:  "patterns",
				Usage: "show the patterns preselected by the control file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "control", Value: controlfile.DefaultPath, Usage: "control file"},
					&cli.StringSliceFlag{Name: "available", Usage: "available patterns"},
				},
				Action: func(cCtx *cli.Context) error {
					control, err := controlfile.Load(cCtx.String("control"))
					if err != nil {
						return err
					}
					required, optional := controlfile.SelectPatterns(control, cCtx.StringSlice("available"))
					return printJSON(map[string][]string{
						"default":  required,
						"optional": optional,
					})
				},
			},
			{
				Name:  "discover",
				Usage: "find registration servers announced in DNS",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "domain", Required: true, Usage: "DNS domain to search"},
					&cli.StringFlag{Name: "dns-server", Usage: "name server host:port, defaults to /etc/resolv.conf"},
				},
				Action: func(cCtx *cli.Context) error {
					resolver := discovery.NewResolver(cCtx.String("dns-server"), flags.SetupLogger(cCtx))
					servers, err := resolver.LookupRegistrationServers(cCtx.Context, cCtx.String("domain"))
					if err != nil {
						return err
					}
					return printJSON(servers)
				},
			},
			{
				Name:  "migrate-credentials",
				Usage: "copy the system credentials of an old installation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source-root", Required: true, Usage: "root directory of the old installation"},
				},
				Action: func(cCtx *cli.Context) error {
					env, err := newClientEnv(cCtx)
					if err != nil {
						return err
					}
					found, err := registration.ImportOldCredentials(cCtx.Context, cCtx.String("source-root"), env.creds, env.log)
					if err != nil {
						return err
					}
					if !found {
						return errors.New("no credentials found in the old installation")
					}
					fmt.Println("Credentials copied")
					return nil
				},
			},
			{
				Name:  "cert",
				Usage: "inspect and import server certificates",
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "show a certificate",
						ArgsUsage: "<file|url>",
						Flags:     []cli.Flag{flagCertInsecure},
						Action: func(cCtx *cli.Context) error {
							cert, err := loadCertificate(cCtx)
							if err != nil {
								return err
							}
							return printJSON(cert.View())
						},
					},
					{
						Name:      "match",
						Usage:     "compare a certificate with a fingerprint",
						ArgsUsage: "<file|url>",
						Flags: []cli.Flag{
							flagCertInsecure,
							&cli.StringFlag{Name: "fingerprint", Required: true, Usage: "KIND:VALUE"},
						},
						Action: func(cCtx *cli.Context) error {
							cert, err := loadCertificate(cCtx)
							if err != nil {
								return err
							}
							kind, value, err := parseFingerprint(cCtx.String("fingerprint"))
							if err != nil {
								return err
							}
							if !cert.FingerprintMatches(kind, value) {
								return cli.Exit("fingerprint does not match", 1)
							}
							fmt.Println("fingerprint matches")
							return nil
						},
					},
					{
						Name:      "import",
						Usage:     "add a certificate to the system trust store",
						ArgsUsage: "<file|url>",
						Flags:     []cli.Flag{flagCertInsecure},
						Action: func(cCtx *cli.Context) error {
							cert, err := loadCertificate(cCtx)
							if err != nil {
								return err
							}
							if err := cert.ImportToSystem(cryptoutils.NewSystemImporter(flags.SetupLogger(cCtx))); err != nil {
								return err
							}
							fmt.Printf("Imported %s (SHA256 %s)\n", cert.SubjectName(), cert.SHA256Fingerprint())
							return nil
						},
					},
				},
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// productRef builds the product selected by the product flags.
func (e *clientEnv) productRef(cCtx *cli.Context) (interfaces.ProductRef, error) {
	name := cCtx.String("name")
	if name == "" {
		base, err := e.packages.LocateBaseProduct(cCtx.Context)
		if err != nil {
			return interfaces.ProductRef{}, err
		}
		base.RegCode = cCtx.String(flagRegCode.Name)
		return interfaces.NewDescriptorRef(base), nil
	}

	if cCtx.String("version") == "" || cCtx.String("arch") == "" {
		return interfaces.ProductRef{}, errors.New("--version and --arch are required with --name")
	}
	return interfaces.NewDescriptorRef(interfaces.ProductDescriptor{
		Name:        name,
		Version:     cCtx.String("version"),
		Arch:        cCtx.String("arch"),
		ReleaseType: cCtx.String("release-type"),
		RegCode:     cCtx.String(flagRegCode.Name),
	}), nil
}

// loadCertificate reads the certificate named by the first argument, a
// local file or an http(s) URL.
func loadCertificate(cCtx *cli.Context) (*cryptoutils.Certificate, error) {
	source := cCtx.Args().First()
	if source == "" {
		return nil, errors.New("certificate file or URL required")
	}
	if _, err := discovery.ValidateURL(source); err == nil {
		fetcher := fetch.NewClient(flags.SetupLogger(cCtx))
		return cryptoutils.DownloadCertificate(cCtx.Context, fetcher, source, cCtx.Bool(flagCertInsecure.Name))
	}
	return cryptoutils.LoadCertificateFile(source)
}
