package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/registration-client/api"
	"github.com/ruteri/registration-client/common"
	"github.com/ruteri/registration-client/registration"
	"github.com/ruteri/registration-client/storage"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// SessionConfig maps the registration flags to a session configuration.
func SessionConfig(cCtx *cli.Context) registration.Config {
	return registration.Config{
		URL:         cCtx.String(URLFlag.Name),
		Language:    cCtx.String(LanguageFlag.Name),
		Debug:       cCtx.Bool(DebugFlag.Name),
		Verbose:     cCtx.Bool(VerboseFlag.Name),
		Insecure:    cCtx.Bool(InsecureFlag.Name),
		CmdlinePath: cCtx.String(CmdlineFlag.Name),
	}
}

var URLFlag = &cli.StringFlag{
	Name:    "url",
	EnvVars: []string{"REGISTRATION_URL"},
	Usage:   "registration server URL, defaults to " + api.DefaultURL,
}
var InsecureFlag = &cli.BoolFlag{
	Name:    "insecure",
	EnvVars: []string{"REGISTRATION_INSECURE"},
	Usage:   "do not verify the registration server certificate",
}
var DebugFlag = &cli.BoolFlag{
	Name:    "debug",
	EnvVars: []string{"REGISTRATION_DEBUG"},
	Usage:   "log requests to the registration server with their request and response bodies",
}
var VerboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	EnvVars: []string{"REGISTRATION_VERBOSE"},
	Usage:   "log requests to the registration server",
}
var LanguageFlag = &cli.StringFlag{
	Name:    "language",
	EnvVars: []string{"LANG"},
	Usage:   "locale for messages of the registration server, e.g. de_DE.UTF-8",
}
var CredentialsFlag = &cli.StringFlag{
	Name:  "credentials",
	Value: storage.DefaultCredentialsURI,
	Usage: "credentials store: file:///dir or vault://host:port/mount/prefix (token from VAULT_TOKEN); a comma separated list mirrors to the later stores",
}
var RootFlag = &cli.StringFlag{
	Name:  "root",
	Value: "/etc/zypp",
	Usage: "package manager configuration directory",
}
var CmdlineFlag = &cli.StringFlag{
	Name:  "cmdline",
	Value: registration.DefaultCmdlinePath,
	Usage: "kernel command line checked for reg_ssl_verify=0, empty to skip",
}
var CACertFlag = &cli.StringFlag{
	Name:  "ca-cert",
	Usage: "additional CA certificate (PEM) trusted for the registration server",
}
var TrustFingerprintFlag = &cli.StringFlag{
	Name:  "trust-fingerprint",
	Usage: "KIND:VALUE (SHA1 or SHA256) of a confirmed server certificate, trusted for one retry",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var RegistrationFlags = []cli.Flag{
	URLFlag,
	InsecureFlag,
	DebugFlag,
	VerboseFlag,
	LanguageFlag,
	CredentialsFlag,
	RootFlag,
	CmdlineFlag,
	CACertFlag,
	TrustFingerprintFlag,
}
