package main

import (
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/ostafen/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var (
	handle *kv.Handle

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvctl",
		Short: "inspect and edit kv environments",
		Long: fmt.Sprintf(`kvctl (v%s)

Reads and writes the buckets of an embedded kv environment. The
environment is opened for the duration of a single command.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvctl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(envCommands...)

	key := "path"
	RootCmd.PersistentFlags().String(key, "./data", WrapString("Directory of the environment"))
	key = "engine"
	RootCmd.PersistentFlags().String(key, kv.DefaultEngine, WrapString(fmt.Sprintf("Storage engine (%s)", engineList())))
	key = "bucket"
	RootCmd.PersistentFlags().String(key, kv.DefaultBucketName, WrapString("Bucket to operate on"))
	key = "int"
	RootCmd.PersistentFlags().Bool(key, false, WrapString("Treat keys as unsigned integers and declare the bucket with integer_key"))
	key = "readonly"
	RootCmd.PersistentFlags().Bool(key, false, WrapString("Open the environment read-only"))
	key = "write-timeout"
	RootCmd.PersistentFlags().Duration(key, kv.DefaultWriteTimeout, WrapString("How long to wait for the writer slot"))
	key = "map-size"
	RootCmd.PersistentFlags().Int64(key, 0, WrapString("Maximum map size in bytes, 0 chooses the engine default"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", WrapString("Configuration file (toml, yaml or json). Flags given explicitly override it"))
	key = "verbose"
	RootCmd.PersistentFlags().BoolP(key, "v", false, WrapString("Log engine activity to stderr"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEnv opens the environment described by the flags. Commands that touch
// an environment use it as PersistentPreRunE.
func openEnv(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	lvl := log15.LvlWarn
	if viper.GetBool("verbose") {
		lvl = log15.LvlDebug
	}
	logger := log15.New("module", "kv")
	logger.SetHandler(log15.LvlFilterHandler(lvl, log15.StderrHandler))

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Logger = logger

	handle, err = kv.Open(cfg)
	return err
}

func closeEnv(*cobra.Command, []string) error {
	if handle == nil {
		return nil
	}
	return handle.Close()
}
