// histomode запускает измерение MultiHarp в режиме гистограмм и
// проверяет записанные файлы.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	multiharp "github.com/iwtcode/multiharpAdapter"
	"github.com/iwtcode/multiharpAdapter/acquisition"
	"github.com/iwtcode/multiharpAdapter/recorder"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	batchRounds int
	channels    int
	bins        int
	timingPath  string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "histomode",
	Short: "MultiHarp histogram mode acquisition",
	Long: `histomode configures a MultiHarp device for histogramming, runs
acquisition cycles on operator command and writes every cycle to disk.

Configuration comes from MH_* environment variables (.env is loaded when
present) and an optional YAML file given with --config.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a measurement",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := multiharp.New(cfg, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		var op acquisition.Operator = acquisition.NewConsoleOperator(os.Stdin, os.Stdout)
		if cmd.Flags().Changed("batch") {
			op = &acquisition.BatchOperator{Rounds: batchRounds}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sum, err := client.Run(ctx, op)
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d cycles in %d rounds, %d with overflow\n",
			sum.RunID, sum.Stats.Cycles, sum.Stats.Rounds, sum.Stats.Overflows)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without touching the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Printf("config %s looks good\n", describe(configPath))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <FileData.dat>",
	Short: "Check a stream data file and its timing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, checkErr := recorder.CheckPair(args[0], timingPath, channels, bins)
		if rep == nil {
			return checkErr
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			return checkErr
		}

		fmt.Printf("header:   %s\n", rep.Header)
		fmt.Printf("size:     %d bytes\n", rep.FileSize)
		fmt.Printf("blocks:   %d x %d bytes\n", rep.Blocks, rep.BlockSize)
		if !rep.Consistent() {
			fmt.Printf("trailing: %d bytes\n", rep.TrailingBytes)
		}
		if timingPath != "" {
			fmt.Printf("timing:   %d lines\n", len(rep.Timing))
		}
		return checkErr
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	runCmd.Flags().IntVar(&batchRounds, "batch", 1, "run this many rounds without prompting")

	inspectCmd.Flags().IntVar(&channels, "channels", 4, "channels per block")
	inspectCmd.Flags().IntVar(&bins, "bins", 4096, "bins per channel")
	inspectCmd.Flags().StringVarP(&timingPath, "timing", "t", "", "timing file to check against the data file")
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")

	rootCmd.AddCommand(runCmd, validateCmd, inspectCmd)
}

func loadConfig() (*multiharp.Config, error) {
	if configPath == "" {
		return multiharp.Load(), nil
	}
	return multiharp.LoadFile(configPath)
}

func describe(path string) string {
	if path == "" {
		return "from environment"
	}
	return path
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
