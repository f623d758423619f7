package commands

import (
	"github.com/mosaicnetworks/hearsay/src/hearsay"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a hearsay node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runHearsay,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runHearsay(cmd *cobra.Command, args []string) error {
	engine := hearsay.NewHearsay(&_config.Hearsay)

	if err := engine.Init(); err != nil {
		_config.Hearsay.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Hearsay.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Hearsay.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")
	cmd.Flags().String("moniker", _config.Hearsay.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Hearsay.BindAddr, "Listen IP:Port for hearsay node")
	cmd.Flags().StringP("advertise", "a", _config.Hearsay.AdvertiseAddr, "Advertise IP:Port for hearsay node")
	cmd.Flags().DurationP("timeout", "t", _config.Hearsay.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Hearsay.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Hearsay.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Hearsay.NoService, "Disable the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Hearsay.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Hearsay.DatabaseDir, "Database directory")

	// Gossip configuration
	cmd.Flags().Duration("tick", _config.Hearsay.TickInterval, "Interval of the maintenance timer")
	cmd.Flags().Int("infection-target", _config.Hearsay.Gossip.InfectionTarget, "Number of peers to infect per round")
	cmd.Flags().Int("saturation-limit", _config.Hearsay.Gossip.SaturationLimit, "Saturation limit percentage")
	cmd.Flags().Duration("finished-entry-duration", _config.Hearsay.Gossip.FinishedEntryDuration, "Retention of finished gossip records")
	cmd.Flags().Duration("gossip-request-timeout", _config.Hearsay.Gossip.GossipRequestTimeout, "Deadline for an outstanding announce")
	cmd.Flags().Duration("get-remainder-timeout", _config.Hearsay.Gossip.GetRemainderTimeout, "Deadline for an outstanding remainder fetch")
	cmd.Flags().Duration("get-from-peer-timeout", _config.Hearsay.Gossip.GetFromPeerTimeout, "Deadline for a one-shot fetch")
	cmd.Flags().Int("max-gossip-attempts", _config.Hearsay.Gossip.MaxGossipAttempts, "Max retries for a single request")
	cmd.Flags().Int("sufficient-peers", _config.Hearsay.Gossip.SufficientPeers, "Peer count below which retries are unbounded")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Hearsay.SetDataDir(_config.Hearsay.DataDir)

	if _config.LogFile != "" {
		addFileLogging(_config.Hearsay.Logger().Logger, _config.LogFile)
	}

	logFields := logrus.Fields{
		"hearsay.DataDir":               _config.Hearsay.DataDir,
		"hearsay.BindAddr":              _config.Hearsay.BindAddr,
		"hearsay.AdvertiseAddr":         _config.Hearsay.AdvertiseAddr,
		"hearsay.ServiceAddr":           _config.Hearsay.ServiceAddr,
		"hearsay.NoService":             _config.Hearsay.NoService,
		"hearsay.MaxPool":               _config.Hearsay.MaxPool,
		"hearsay.Store":                 _config.Hearsay.Store,
		"hearsay.LogLevel":              _config.Hearsay.LogLevel,
		"hearsay.Moniker":               _config.Hearsay.Moniker,
		"hearsay.TickInterval":          _config.Hearsay.TickInterval,
		"hearsay.TCPTimeout":            _config.Hearsay.TCPTimeout,
		"gossip.InfectionTarget":        _config.Hearsay.Gossip.InfectionTarget,
		"gossip.SaturationLimit":        _config.Hearsay.Gossip.SaturationLimit,
		"gossip.FinishedEntryDuration":  _config.Hearsay.Gossip.FinishedEntryDuration,
		"gossip.GossipRequestTimeout":   _config.Hearsay.Gossip.GossipRequestTimeout,
		"gossip.GetRemainderTimeout":    _config.Hearsay.Gossip.GetRemainderTimeout,
		"gossip.GetFromPeerTimeout":     _config.Hearsay.Gossip.GetFromPeerTimeout,
		"gossip.MaxGossipAttempts":      _config.Hearsay.Gossip.MaxGossipAttempts,
		"gossip.SufficientPeers":        _config.Hearsay.Gossip.SufficientPeers,
	}

	if _config.Hearsay.Store {
		logFields["hearsay.DatabaseDir"] = _config.Hearsay.DatabaseDir
	}

	_config.Hearsay.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/hearsay.toml (.json, .yaml also work)
	viper.SetConfigName("hearsay")               // name of config file (without extension)
	viper.AddConfigPath(_config.Hearsay.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Hearsay.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Hearsay.Logger().Debugf("No config file found in: %s", _config.Hearsay.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addFileLogging tees every level to the given file.
func addFileLogging(logger *logrus.Logger, path string) {
	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		pathMap[level] = path
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
