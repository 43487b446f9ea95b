// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"

	"github.com/cnpool/payoutd/util"
)

const (
	defaultConfigFilename    = "payoutd.conf"
	defaultLogLevel          = "info"
	defaultLogDirname        = "log"
	defaultLogFilename       = "payoutd.log"
	defaultCacheFilename     = "payoutd.kv"
	defaultPGHost            = "127.0.0.1"
	defaultPGPort            = uint32(5432)
	defaultPGUser            = "payoutd"
	defaultPGPass            = "payoutd"
	defaultPGDBName          = "cnpool"
	defaultWalletHost        = "127.0.0.1"
	defaultWalletPort        = uint32(8070)
	defaultPaymentInterval   = 15
	defaultRetryInterval     = 10
	defaultWalletMin         = "0.1"
	defaultPayoutFee         = "0.005"
	defaultFeeSlewEnd        = "1"
	defaultExchangeMin       = "5"
	defaultFeesForTXN        = "0.1"
	defaultDenomUnit         = "0.01"
	defaultTxFee             = "0.004"
	defaultSigDigits         = 1000000000
	defaultCoinSymbol        = "XCN"
	defaultIntegratedAddrLen = 106
	defaultMaxPaymentTxns    = 10
	defaultMixIn             = 3
)

var (
	defaultHomeDir    = defaultAppHomeDir()
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultCacheFile  = filepath.Join(defaultHomeDir, defaultCacheFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// defaultAppHomeDir returns the default application home directory for the
// current user.
func defaultAppHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".payoutd")
}

// config defines the configuration options for payoutd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir           string `long:"homedir" description:"Path to application home directory"`
	ConfigFile        string `long:"configfile" description:"Path to configuration file"`
	DebugLevel        string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir            string `long:"logdir" description:"Directory to log output"`
	CacheFile         string `long:"cachefile" description:"Path to the local payout cache file"`
	PGHost            string `long:"pghost" description:"Host of the postgres ledger"`
	PGPort            uint32 `long:"pgport" description:"Port of the postgres ledger"`
	PGUser            string `long:"pguser" description:"Username of the postgres ledger"`
	PGPass            string `long:"pgpass" default-mask:"-" description:"Password of the postgres ledger"`
	PGDBName          string `long:"pgdbname" description:"Name of the postgres database"`
	WalletHost        string `long:"wallethost" description:"The wallet daemon RPC host"`
	WalletPort        uint32 `long:"walletport" description:"The wallet daemon RPC port"`
	WalletTLS         bool   `long:"wallettls" description:"Connect to the wallet daemon via https"`
	WalletAuthFile    string `long:"walletauthfile" description:"Path to a file containing user:pass basic auth credentials for the wallet daemon"`
	PoolAddress       string `long:"pooladdress" description:"The pool wallet's change address"`
	FeeAddress        string `long:"feeaddress" description:"The pool's fee collection address"`
	PaymentInterval   uint64 `long:"paymentinterval" description:"The period of the normal payment cycle, in minutes"`
	RetryInterval     uint64 `long:"retryinterval" description:"The cooldown before retrying a payment cycle after an insufficient funds outcome, in minutes"`
	WalletMin         string `long:"walletmin" description:"The minimum balance eligible for payout, in coins"`
	PayoutFee         string `long:"payoutfee" description:"The flat payout fee charged on minimum payouts, in coins"`
	FeeSlewEnd        string `long:"feeslewend" description:"The payout amount at which the payout fee reaches zero, in coins"`
	ExchangeMin       string `long:"exchangemin" description:"The minimum amount routed through an individual transaction for exchange-bound destinations, in coins"`
	FeesForTXN        string `long:"feesfortxn" description:"The amount reserved from the fee collection balance for the pool's own transaction costs, in coins"`
	DenomUnit         string `long:"denomunit" description:"The payable amount unit, in coins"`
	SigDigits         int64  `long:"sigdigits" description:"The number of atomic units per coin"`
	CoinSymbol        string `long:"coinsymbol" description:"The ticker symbol used in logs and announcements"`
	IntegratedAddrLen uint32 `long:"integratedaddrlen" description:"The address length identifying integrated addresses"`
	MaxPaymentTxns    int    `long:"maxpaymenttxns" description:"The maximum number of transfers carried by one batched transaction"`
	MixIn             uint32 `long:"mixin" description:"The anonymity (mixin) parameter of wallet transactions"`
	TxFee             string `long:"txfee" description:"The network fee requested for wallet transactions, in coins"`
	UnlockTime        int64  `long:"unlocktime" description:"The unlock time requested for wallet transactions"`
	AdminEmail        string `long:"adminemail" description:"The pool operator email address for fatal error alerts"`
	EmailFrom         string `long:"emailfrom" description:"The sender address for alert email"`
	SMTPHost          string `long:"smtphost" description:"The SMTP relay (host:port) for alert email"`
	SMTPUser          string `long:"smtpuser" description:"SMTP PLAIN auth username"`
	SMTPPass          string `long:"smtppass" default-mask:"-" description:"SMTP PLAIN auth password"`
	WebhookURL        string `long:"webhookurl" description:"A chat webhook endpoint for payout announcements"`
	ShowVersion       bool   `short:"V" long:"version" description:"Display version information and exit"`

	// Parsed and validated values, all amounts in atomic units.
	paymentInterval time.Duration
	retryInterval   time.Duration
	walletMin       int64
	payoutFee       int64
	feeSlewEnd      int64
	exchangeMin     int64
	feesForTXN      int64
	dustUnit        int64
	txFee           int64
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := slog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createConfigFile copies the sample config to the given destination path.
func createConfigFile(preCfg config) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(preCfg.ConfigFile), 0700)
	if err != nil {
		return err
	}

	// Replace the sample configuration file contents with the provided values.
	debugLevelRE := regexp.MustCompile(`(?m)^;\s*debuglevel=[^\s]*$`)
	homeDirRE := regexp.MustCompile(`(?m)^;\s*homedir=[^\s]*$`)
	configFileRE := regexp.MustCompile(`(?m)^;\s*configfile=[^\s]*$`)
	cacheFileRE := regexp.MustCompile(`(?m)^;\s*cachefile=[^\s]*$`)
	logDirRE := regexp.MustCompile(`(?m)^;\s*logdir=[^\s]*$`)
	s := homeDirRE.ReplaceAllString(ConfigFileContents, fmt.Sprintf("homedir=%s", preCfg.HomeDir))
	s = debugLevelRE.ReplaceAllString(s, fmt.Sprintf("debuglevel=%s", preCfg.DebugLevel))
	s = configFileRE.ReplaceAllString(s, fmt.Sprintf("configfile=%s", preCfg.ConfigFile))
	s = cacheFileRE.ReplaceAllString(s, fmt.Sprintf("cachefile=%s", preCfg.CacheFile))
	s = logDirRE.ReplaceAllString(s, fmt.Sprintf("logdir=%s", preCfg.LogDir))

	// Create config file at the provided path.
	dest, err := os.OpenFile(preCfg.ConfigFile,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = dest.WriteString(s)
	return err
}

// coinAmount converts the provided decimal coin option value to atomic units.
func coinAmount(option, value string, sigDigits int64) (int64, error) {
	atoms, err := util.DecimalToCoin(value, sigDigits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s option: %v", option, err)
	}
	if atoms < 0 {
		return 0, fmt.Errorf("invalid %s option: amount %s is negative",
			option, value)
	}
	return atoms, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in payoutd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:           defaultHomeDir,
		ConfigFile:        defaultConfigFile,
		CacheFile:         defaultCacheFile,
		DebugLevel:        defaultLogLevel,
		LogDir:            defaultLogDir,
		PGHost:            defaultPGHost,
		PGPort:            defaultPGPort,
		PGUser:            defaultPGUser,
		PGPass:            defaultPGPass,
		PGDBName:          defaultPGDBName,
		WalletHost:        defaultWalletHost,
		WalletPort:        defaultWalletPort,
		PaymentInterval:   defaultPaymentInterval,
		RetryInterval:     defaultRetryInterval,
		WalletMin:         defaultWalletMin,
		PayoutFee:         defaultPayoutFee,
		FeeSlewEnd:        defaultFeeSlewEnd,
		ExchangeMin:       defaultExchangeMin,
		FeesForTXN:        defaultFeesForTXN,
		DenomUnit:         defaultDenomUnit,
		TxFee:             defaultTxFee,
		SigDigits:         defaultSigDigits,
		CoinSymbol:        defaultCoinSymbol,
		IntegratedAddrLen: defaultIntegratedAddrLen,
		MaxPaymentTxns:    defaultMaxPaymentTxns,
		MixIn:             defaultMixIn,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// Update the home directory for payoutd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			defaultConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
			preCfg.ConfigFile = defaultConfigFile
			cfg.ConfigFile = defaultConfigFile
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
		if preCfg.CacheFile == defaultCacheFile {
			cfg.CacheFile = filepath.Join(cfg.HomeDir,
				defaultCacheFilename)
		} else {
			cfg.CacheFile = preCfg.CacheFile
		}
	}

	// Create a default config file when one does not exist and the user
	// did not specify an override.
	if !fileExists(preCfg.ConfigFile) {
		err := createConfigFile(preCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating a default "+
				"config file: %v", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		var e *os.PathError
		if errors.As(err, &e) && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.CacheFile = cleanAndExpandPath(cfg.CacheFile)
	cfg.WalletAuthFile = cleanAndExpandPath(cfg.WalletAuthFile)

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.PoolAddress == "" {
		return nil, nil, fmt.Errorf("%s: the pooladdress option is "+
			"required", funcName)
	}
	if cfg.FeeAddress == "" {
		return nil, nil, fmt.Errorf("%s: the feeaddress option is "+
			"required", funcName)
	}
	if cfg.SigDigits <= 0 {
		return nil, nil, fmt.Errorf("%s: the sigdigits option must be "+
			"positive", funcName)
	}
	if cfg.AdminEmail != "" && (cfg.EmailFrom == "" || cfg.SMTPHost == "") {
		return nil, nil, fmt.Errorf("%s: the emailfrom and smtphost "+
			"options are required when adminemail is set", funcName)
	}

	// Convert the decimal coin amount options into atomic units.
	coinOpts := []struct {
		option string
		value  string
		out    *int64
	}{
		{"walletmin", cfg.WalletMin, &cfg.walletMin},
		{"payoutfee", cfg.PayoutFee, &cfg.payoutFee},
		{"feeslewend", cfg.FeeSlewEnd, &cfg.feeSlewEnd},
		{"exchangemin", cfg.ExchangeMin, &cfg.exchangeMin},
		{"feesfortxn", cfg.FeesForTXN, &cfg.feesForTXN},
		{"denomunit", cfg.DenomUnit, &cfg.dustUnit},
		{"txfee", cfg.TxFee, &cfg.txFee},
	}
	for _, opt := range coinOpts {
		atoms, err := coinAmount(opt.option, opt.value, cfg.SigDigits)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %v", funcName, err)
		}
		*opt.out = atoms
	}
	if cfg.dustUnit <= 0 {
		return nil, nil, fmt.Errorf("%s: the denomunit option must be "+
			"positive", funcName)
	}
	if cfg.feeSlewEnd <= cfg.walletMin {
		return nil, nil, fmt.Errorf("%s: the feeslewend option must "+
			"exceed walletmin", funcName)
	}

	cfg.paymentInterval = time.Duration(cfg.PaymentInterval) * time.Minute
	cfg.retryInterval = time.Duration(cfg.RetryInterval) * time.Minute

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		payLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
