package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ruteri/registration-client/cmd/flags"
	"github.com/ruteri/registration-client/cryptoutils"
	"github.com/ruteri/registration-client/httpserver"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var flagArch = &cli.StringFlag{
	Name:  "arch",
	Value: archName(runtime.GOARCH),
	Usage: "architecture of the demo catalog",
}
var flagRegCodes = &cli.StringSliceFlag{
	Name:  "regcode",
	Usage: "additional accepted registration codes",
}
var flagServiceBase = &cli.StringFlag{
	Name:  "service-base",
	Usage: "base URL of service and repository links, defaults to the request host",
}
var flagTLSCert = &cli.StringFlag{
	Name:  "tls-cert",
	Usage: "TLS certificate file (PEM)",
}
var flagTLSKey = &cli.StringFlag{
	Name:  "tls-key",
	Usage: "TLS private key file (PEM)",
}
var flagSelfSigned = &cli.StringSliceFlag{
	Name:  "tls-self-signed",
	Usage: "serve a generated self-signed certificate for these hosts when no certificate file is given",
}
var flagAdminKeys = &cli.StringFlag{
	Name:  "admin-keys-file",
	Usage: "JSON file listing admin public keys; enables the admin API",
}

func main() {
	app := &cli.App{
		Name:  "entitlement-stub",
		Usage: "Serve an in-memory entitlement service for development and tests",
		Flags: append(append([]cli.Flag{
			flagListenAddr,
			flagArch,
			flagRegCodes,
			flagServiceBase,
			flagTLSCert,
			flagTLSKey,
			flagSelfSigned,
			flagAdminKeys,
			flags.LogServiceFlagFn("entitlement-stub"),
		}, flags.LogFlags...), flags.ServerFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))
			cfg.TLSCertFile = cCtx.String(flagTLSCert.Name)
			cfg.TLSKeyFile = cCtx.String(flagTLSKey.Name)
			if hosts := cCtx.StringSlice(flagSelfSigned.Name); len(hosts) > 0 && cfg.TLSCertFile == "" {
				cert, err := cryptoutils.SelfSignedCert(hosts...)
				if err != nil {
					logger.Error("Failed to generate certificate", "err", err)
					return err
				}
				cfg.TLSCertificate = &cert
				logger.Info("Serving self-signed certificate",
					"sha256", cryptoutils.NewCertificate(cert.Leaf).SHA256Fingerprint())
			}

			state := httpserver.DemoState(cCtx.String(flagArch.Name))
			for _, code := range cCtx.StringSlice(flagRegCodes.Name) {
				state.AddRegCode(code)
			}

			handler := httpserver.NewHandler(state, logger).WithServiceBase(cCtx.String(flagServiceBase.Name))
			if path := cCtx.String(flagAdminKeys.Name); path != "" {
				adminKeys, err := loadAdminKeys(path)
				if err != nil {
					logger.Error("Failed to load admin keys", "err", err)
					return err
				}
				handler.WithAdmin(adminKeys)
				logger.Info("Admin API enabled", "admins", len(adminKeys))
			}
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Accepting registration code", "regcode", httpserver.DemoRegCode)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadAdminKeys(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return httpserver.LoadAdminKeys(f)
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return goarch
}
