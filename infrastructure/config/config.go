package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/kaspanet/p2pwire/infrastructure/logger"
	"github.com/kaspanet/p2pwire/infrastructure/network/connector"
	"github.com/kaspanet/p2pwire/infrastructure/network/handshake"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/util/crypto"
	"github.com/kaspanet/p2pwire/util/network"
	"github.com/kaspanet/p2pwire/version"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename           = "p2pwire.conf"
	defaultLogDirname               = "logs"
	defaultLogFilename              = "p2pwire.log"
	defaultErrLogFilename           = "p2pwire_err.log"
	defaultLogLevel                 = "info"
	defaultListenPort               = 16611
	defaultConnectTimeout           = 10 * time.Second
	defaultWorkingBufferSize        = 64 * 1024
	defaultWorkingBufferSensitivity = 1024
	defaultMaxPacketDataSize        = 16 * 1024 * 1024
	defaultSecurityModes            = "none"
	defaultIdentityEquality         = "key"
	defaultOutgoingProtocols        = "all"
	defaultMaxInboundConnections    = 117
	defaultConnectRetryMin          = 5 * time.Second
	defaultConnectRetryMax          = 10 * time.Minute
)

var (
	// DefaultHomeDir is the default home directory of the node.
	DefaultHomeDir = btcutil.AppDataDir("p2pwire", false)

	defaultConfigFile = filepath.Join(DefaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(DefaultHomeDir, defaultLogDirname)
)

// Flags defines the command line and config file options of the node.
type Flags struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile     string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`

	Listeners             []string `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 16611)"`
	NoListen              bool     `long:"nolisten" description:"Disable listening for incoming connections"`
	ReuseAddress          bool     `long:"reuseaddress" description:"Set SO_REUSEADDR on listening sockets"`
	MaxInboundConnections int      `long:"maxinbound" description:"Max number of inbound connections"`
	ConnectPeers          []string `long:"connect" description:"Connect to the given peer, given as <public key>@<host>:<port>, and keep reconnecting to it"`
	PrivateKey            string   `long:"privatekey" description:"Hex encoded private key that identifies this node (a fresh key is generated when empty)"`
	Threads               int      `long:"threads" description:"Number of worker threads (0 to use one per CPU)"`

	ConnectTimeout           time.Duration `long:"timeout" description:"Timeout for connecting to a peer and verifying it"`
	WorkingBufferSize        int           `long:"workingbuffersize" description:"Size of the per socket receive buffer"`
	WorkingBufferSensitivity int           `long:"workingbuffersensitivity" description:"Number of receive buffer appends between memory reclamation checks (0 disables reclamation)"`
	MaxPacketDataSize        uint32        `long:"maxpacketdatasize" description:"Largest accepted packet body"`
	IncomingSecurityModes    string        `long:"incomingsecuritymodes" description:"Comma separated security modes accepted from incoming peers {none, signed}"`
	OutgoingSecurityMode     string        `long:"outgoingsecuritymode" description:"Security mode requested from outgoing peers {none, signed}"`
	AllowIncomingSelf        bool          `long:"allowincomingself" description:"Accept incoming connections that present this node's own key"`
	AllowOutgoingSelf        bool          `long:"allowoutgoingself" description:"Allow connecting to a peer with this node's own key"`
	IdentityEquality         string        `long:"identityequality" description:"How two peer identities are compared {key, host}"`
	OutgoingProtocols        string        `long:"outgoingprotocols" description:"IP families used for outgoing connections {all, ipv4, ipv6}"`
	ConnectRetryMin          time.Duration `long:"connectretrymin" description:"First delay before retrying a failed connection"`
	ConnectRetryMax          time.Duration `long:"connectretrymax" description:"Largest delay between connection retries"`

	Proxy     string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser string `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass string `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
}

// Config is the fully resolved configuration of the node.
type Config struct {
	*Flags

	KeyPair         *crypto.KeyPair
	Peers           []ionet.Node
	Connection      connector.ConnectionSettings
	LogFile         string
	ErrLogFile      string
	ListenAddresses []string
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:               defaultConfigFile,
		LogDir:                   defaultLogDir,
		DebugLevel:               defaultLogLevel,
		MaxInboundConnections:    defaultMaxInboundConnections,
		ConnectTimeout:           defaultConnectTimeout,
		WorkingBufferSize:        defaultWorkingBufferSize,
		WorkingBufferSensitivity: defaultWorkingBufferSensitivity,
		MaxPacketDataSize:        defaultMaxPacketDataSize,
		IncomingSecurityModes:    defaultSecurityModes,
		OutgoingSecurityMode:     defaultSecurityModes,
		IdentityEquality:         defaultIdentityEquality,
		OutgoingProtocols:        defaultOutgoingProtocols,
		ConnectRetryMin:          defaultConnectRetryMin,
		ConnectRetryMax:          defaultConnectRetryMax,
	}
}

// LoadConfig parses args, and the config file they point to, into a Config.
// Command line options take precedence over the config file. A missing
// config file is not an error.
//
// When -h is passed, the returned error is a *flags.Error of type
// flags.ErrHelp.
func LoadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line to find the config file and the version
	// flag. Errors other than help are caught by the final parse.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	parser := flags.NewParser(cfgFlags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	_, err = parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg, err := resolve(cfgFlags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}
	return cfg, nil
}

func resolve(cfgFlags *Flags) (*Config, error) {
	cfg := &Config{Flags: cfgFlags}

	if cfgFlags.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}
	err := logger.ParseAndSetLogLevels(cfgFlags.DebugLevel)
	if err != nil {
		return nil, err
	}

	logDir := cleanAndExpandPath(cfgFlags.LogDir)
	cfg.LogFile = filepath.Join(logDir, defaultLogFilename)
	cfg.ErrLogFile = filepath.Join(logDir, defaultErrLogFilename)

	if cfgFlags.PrivateKey != "" {
		cfg.KeyPair, err = crypto.KeyPairFromPrivateKeyHex(cfgFlags.PrivateKey)
	} else {
		cfg.KeyPair, err = crypto.GenerateKeyPair()
	}
	if err != nil {
		return nil, err
	}

	for _, peer := range cfgFlags.ConnectPeers {
		node, err := ionet.ParseNode(peer)
		if err != nil {
			return nil, err
		}
		cfg.Peers = append(cfg.Peers, node)
	}

	if !cfgFlags.NoListen {
		listeners := cfgFlags.Listeners
		if len(listeners) == 0 {
			listeners = []string{""}
		}
		cfg.ListenAddresses, err = network.NormalizeAddresses(listeners, defaultListenPort)
		if err != nil {
			return nil, err
		}
	}

	if cfgFlags.Profile != "" {
		profilePort, err := strconv.Atoi(cfgFlags.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return nil, errors.Errorf("the profile port must be between 1024 and 65535, got %s", cfgFlags.Profile)
		}
	}

	if cfgFlags.MaxInboundConnections < 0 {
		return nil, errors.Errorf("maxinbound must not be negative, got %d", cfgFlags.MaxInboundConnections)
	}
	if cfgFlags.Threads < 0 {
		return nil, errors.Errorf("threads must not be negative, got %d", cfgFlags.Threads)
	}
	if cfgFlags.ConnectRetryMin <= 0 || cfgFlags.ConnectRetryMax < cfgFlags.ConnectRetryMin {
		return nil, errors.Errorf("connectretrymin (%s) must be positive and not above connectretrymax (%s)",
			cfgFlags.ConnectRetryMin, cfgFlags.ConnectRetryMax)
	}

	cfg.Connection, err = connectionSettings(cfgFlags)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func connectionSettings(cfgFlags *Flags) (connector.ConnectionSettings, error) {
	settings := connector.DefaultConnectionSettings()

	if cfgFlags.ConnectTimeout <= 0 {
		return settings, errors.Errorf("timeout must be positive, got %s", cfgFlags.ConnectTimeout)
	}
	settings.Timeout = cfgFlags.ConnectTimeout

	if cfgFlags.WorkingBufferSize <= 0 {
		return settings, errors.Errorf("workingbuffersize must be positive, got %d", cfgFlags.WorkingBufferSize)
	}
	// Sensitivity counts appends, so it is independent of the buffer size.
	// Zero disables memory reclamation.
	if cfgFlags.WorkingBufferSensitivity < 0 {
		return settings, errors.Errorf("workingbuffersensitivity must not be negative, got %d",
			cfgFlags.WorkingBufferSensitivity)
	}
	settings.SocketWorkingBufferSize = cfgFlags.WorkingBufferSize
	settings.SocketWorkingBufferSensitivity = cfgFlags.WorkingBufferSensitivity

	if cfgFlags.MaxPacketDataSize == 0 {
		return settings, errors.New("maxpacketdatasize must be positive")
	}
	settings.MaxPacketDataSize = cfgFlags.MaxPacketDataSize

	var err error
	settings.IncomingSecurityModes, err = handshake.ParseSecurityModes(cfgFlags.IncomingSecurityModes)
	if err != nil {
		return settings, errors.Wrap(err, "invalid incomingsecuritymodes")
	}
	settings.OutgoingSecurityMode, err = handshake.ParseSecurityModes(cfgFlags.OutgoingSecurityMode)
	if err != nil {
		return settings, errors.Wrap(err, "invalid outgoingsecuritymode")
	}
	if !settings.OutgoingSecurityMode.IsSingleMode() {
		return settings, errors.Errorf("outgoingsecuritymode must name a single mode, got %s",
			settings.OutgoingSecurityMode)
	}

	settings.AllowIncomingSelfConnections = cfgFlags.AllowIncomingSelf
	settings.AllowOutgoingSelfConnections = cfgFlags.AllowOutgoingSelf

	settings.NodeIdentityEqualityStrategy, err = ionet.ParseNodeIdentityEqualityStrategy(cfgFlags.IdentityEquality)
	if err != nil {
		return settings, err
	}

	settings.OutgoingProtocols, err = parseIPProtocols(cfgFlags.OutgoingProtocols)
	if err != nil {
		return settings, err
	}

	if cfgFlags.Proxy != "" {
		settings.Proxy = &ionet.ProxyOptions{
			Address:  cfgFlags.Proxy,
			Username: cfgFlags.ProxyUser,
			Password: cfgFlags.ProxyPass,
		}
	}
	return settings, nil
}

func parseIPProtocols(s string) (ionet.IPProtocol, error) {
	switch strings.ToLower(s) {
	case "all":
		return ionet.IPProtocolAll, nil
	case "ipv4":
		return ionet.IPProtocolIPv4, nil
	case "ipv6":
		return ionet.IPProtocolIPv6, nil
	}
	return ionet.IPProtocolNone, errors.Errorf("unknown outgoing protocols %s", s)
}

// cleanAndExpandPath expands environment variables and a leading ~ in path,
// and cleans the result.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}
