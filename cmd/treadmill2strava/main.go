package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agonajredini/Treadmill-to-Strava/internal/config"
	"github.com/agonajredini/Treadmill-to-Strava/models"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/envfile"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/exifmeta"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/history"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/ocr"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/pipeline"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/strava"
)

var (
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	configPath string

	uploadTitle       string
	uploadDescription string
	uploadForce       bool
	historyLimit      int
	initBaseDir       string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "treadmill2strava",
	Short: "Publish treadmill console photos as Strava runs",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: per-user config dir)")

	uploadCmd.Flags().StringVar(&uploadTitle, "title", "", "activity title (default from config)")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", "", "activity description (default from config)")
	uploadCmd.Flags().BoolVar(&uploadForce, "force", false, "upload even if this image was uploaded before")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of journal rows to show")
	configInitCmd.Flags().StringVar(&initBaseDir, "base-dir", "", "data directory for credentials and journal")

	configCmd.AddCommand(configInitCmd, configListCmd)
	rootCmd.AddCommand(configCmd, authorizeCmd, parseCmd, uploadCmd, watchCmd, historyCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config (run `treadmill2strava config init` first?): %w", err)
	}
	return cfg, nil
}

func newSession(cfg *config.Config) (*strava.Session, error) {
	store := envfile.New(cfg.CredentialsFile)
	sess, err := strava.NewSession(store, log)
	if err != nil {
		return nil, err
	}
	if cfg.Strava.RedirectURI != "" {
		sess.RedirectURI = cfg.Strava.RedirectURI
	}
	if cfg.Strava.CallbackAddr != "" {
		path := cfg.Strava.CallbackPath
		if path == "" {
			path = "/callback"
		}
		cs := &strava.CallbackServer{Addr: cfg.Strava.CallbackAddr, Path: path, Log: log}
		sess.ObtainCallback = cs.Obtain
	} else {
		sess.ObtainCallback = strava.PasteCallback(nil, nil)
	}
	return sess, nil
}

func newEngine(cfg *config.Config) (ocr.Engine, error) {
	switch cfg.OCR.Engine {
	case "tesseract":
		return &ocr.TesseractEngine{}, nil
	case "vision":
		if cfg.OCR.VisionAPIKey == "" {
			return nil, fmt.Errorf("ocr.vision_api_key is not set in the config")
		}
		return &ocr.VisionEngine{APIKey: cfg.OCR.VisionAPIKey, Endpoint: cfg.OCR.VisionEndpoint}, nil
	default:
		return nil, fmt.Errorf("unknown ocr.engine %q", cfg.OCR.Engine)
	}
}

func newPipeline(cfg *config.Config, force bool) (*pipeline.Pipeline, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	var journal *history.Journal
	if cfg.History.Path != "" {
		journal, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
	}
	return &pipeline.Pipeline{
		Engine:   engine,
		Uploader: strava.NewClient(sess, log),
		Journal:  journal,
		Log:      log,
		Force:    force,
	}, nil
}

func texts(cfg *config.Config) (title, description string) {
	title, description = uploadTitle, uploadDescription
	if title == "" {
		title = cfg.Activity.Title
	}
	if description == "" {
		description = cfg.Activity.Description
	}
	return title, description
}

// reportResult prints one pipeline outcome and returns an error for failures
// so the process exits non-zero.
func reportResult(res pipeline.Result) error {
	switch res.Status {
	case models.StatusUploaded:
		fmt.Printf("Activity uploaded successfully! id=%d start=%s (time %s, distance %s km)\n",
			res.ActivityID, res.StartDate, res.Fields.Time, res.Fields.Distance)
		return nil
	case models.StatusSkipped:
		fmt.Printf("Skipped %s: %s\n", res.ImagePath, res.Detail)
		return nil
	default:
		return fmt.Errorf("processing %s: %w", res.ImagePath, res.Err)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			path, err = config.DefaultPath()
			if err != nil {
				return err
			}
		}
		baseDir := initBaseDir
		if baseDir == "" {
			var err error
			baseDir, err = config.DefaultBaseDir()
			if err != nil {
				return err
			}
		}
		if err := os.MkdirAll(baseDir, 0o700); err != nil {
			return fmt.Errorf("create base dir: %w", err)
		}
		if err := config.Init(path, config.NewConfig(baseDir)); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Put STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET into %s, then run `treadmill2strava authorize`.\n",
			config.NewConfig(baseDir).CredentialsFile)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Credentials file: %s\n", cfg.CredentialsFile)
		fmt.Printf("OCR engine:       %s\n", cfg.OCR.Engine)
		fmt.Printf("Redirect URI:     %s\n", cfg.Strava.RedirectURI)
		fmt.Printf("Watch dir:        %s\n", cfg.Watch.Dir)
		fmt.Printf("Journal:          %s\n", cfg.History.Path)
		fmt.Printf("Default title:    %s\n", cfg.Activity.Title)
		return nil
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Run the browser-based OAuth authorization flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := newSession(cfg)
		if err != nil {
			return err
		}
		if _, err := sess.Authorize(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Authorization complete. Tokens stored.")
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <image>",
	Short: "Extract and show time/distance from a photo without uploading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		text, err := engine.ExtractText(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fields := ocr.ParseFields(text)
		fmt.Printf("Time: %s, Distance: %s\n", fields.Time, fields.Distance)
		if when, err := exifmeta.CaptureTimeStravaLocal(args[0]); err == nil {
			fmt.Printf("Captured: %s\n", when)
		} else {
			fmt.Printf("Captured: unknown (%v)\n", err)
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "OCR a treadmill photo and upload it as a Run activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := newPipeline(cfg, uploadForce)
		if err != nil {
			return err
		}
		title, description := texts(cfg)
		return reportResult(p.Process(cmd.Context(), args[0], title, description))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and upload every new treadmill photo",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.Watch.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given and watch.dir not set in config")
		}
		p, err := newPipeline(cfg, false)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		worker := pipeline.NewWorker(p, 16)
		go worker.Run(ctx)
		go func() {
			for res := range worker.Results {
				if err := reportResult(res); err != nil {
					log.Error().Err(res.Err).Str("image", res.ImagePath).Msg("upload failed")
				}
			}
		}()

		title, description := texts(cfg)
		return pipeline.WatchDirectory(ctx, dir, title, description, worker.Requests, log)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local upload journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return fmt.Errorf("history.path not set in config")
		}
		journal, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		recs, err := journal.List(historyLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No uploads recorded yet.")
			return nil
		}
		for _, r := range recs {
			fmt.Printf("%s  %-8s  time=%-6s dist=%-5s activity=%-12d %s\n",
				r.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.ElapsedTime, r.Distance, r.ActivityID, r.ImagePath)
		}
		return nil
	},
}
