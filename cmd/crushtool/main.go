package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zzenonn/zcrush/internal/config"
	"github.com/zzenonn/zcrush/internal/logging"
	"github.com/zzenonn/zcrush/internal/placement"
	"github.com/zzenonn/zcrush/internal/service"
)

var (
	cfgFile    string
	cfg        *config.Config
	publisher  *placement.VersionedPublisher
	mapService *service.MapService
)

var rootCmd = &cobra.Command{
	Use:   "crushtool",
	Short: "Build and edit CRUSH placement maps",
	Long:  "A CLI application built with Cobra for describing, building, reweighting and publishing CRUSH maps",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log_level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress bars")
	rootCmd.PersistentFlags().String("tunables_profile", "optimal", "starting tunables (optimal or legacy)")
	rootCmd.PersistentFlags().String("publish", "default", "name to publish built maps under")
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)

	// Progress bars only make sense on a terminal.
	if !cfg.Quiet && !term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.Quiet = true
	}

	publisher = placement.NewVersionedPublisher()
	mapService = service.NewMapService(cfg.Tunables, publisher)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
