package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/config"
	"github.com/ironsheep/label-propagator/internal/project"
)

var (
	projectDir string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "labelprop",
	Short: "Propagate bounding-box labels across an image collection",
	Long: `labelprop spreads a few hand-drawn bounding boxes across a directory of images.

Labels are copied to near-identical images, searched for as objects in similar
images, or followed through neighbouring frames of a sequence. Results are queued
as suggestions for review unless --auto-accept is given. The same operations are
available to MCP clients through 'labelprop serve'.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Configure logging to stderr (stdout is for MCP protocol and command output)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "Project directory holding the images and labels.json")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (default <project>/"+config.DefaultFile+")")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// openProject opens the project named by --project, reading --config when given.
func openProject() (*project.Project, error) {
	var cfg *config.Config
	if configFile != "" {
		c, err := config.Load(configFile, true)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	return project.Open(projectDir, cfg, nil)
}
