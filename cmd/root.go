package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/config"
	"github.com/amirhossein5/rollcall/internal/dbconnection"
	"github.com/amirhossein5/rollcall/internal/enroll"
	"github.com/amirhossein5/rollcall/internal/matcher"
	"github.com/amirhossein5/rollcall/internal/pipeline"
	"github.com/amirhossein5/rollcall/internal/recognizer"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/amirhossein5/rollcall/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const Version = "0.1.0"

// app holds what every subcommand shares. Models are opened lazily since
// list and delete never need them.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	store     *store.Store
	metrics   *metrics.Manager
	publisher *attendance.Publisher

	faces    *recognizer.GoFace
	detector *recognizer.HOGPeople
}

var (
	configPath string
	rollcall   = &app{}
)

var rootCmd = &cobra.Command{
	Use:           "rollcall",
	Short:         "Face recognition attendance from group photos and live video",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return rollcall.open(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		rollcall.close()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: $ROLLCALL_CONFIG)")
}

func (a *app) open(ctx context.Context) error {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}

	db, err := dbconnection.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	s, err := store.Open(ctx, store.NewGormPersister(db))
	if err != nil {
		_ = dbconnection.Close(db)
		return err
	}

	a.cfg = cfg
	a.db = db
	a.store = s
	a.metrics = metrics.NewManager()
	a.publisher = attendance.NewPublisher(cfg.ReportDir, cfg.RegisterPath)
	return nil
}

func (a *app) close() {
	if a.faces != nil {
		a.faces.Close()
	}
	if a.detector != nil {
		_ = a.detector.Close()
	}
	if a.db != nil {
		_ = dbconnection.Close(a.db)
	}
}

func (a *app) faceModel() (*recognizer.GoFace, error) {
	if a.faces == nil {
		rec, err := recognizer.NewGoFace(a.cfg.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("can't init face recognizer: %w", err)
		}
		a.faces = rec
	}
	return a.faces, nil
}

func (a *app) personDetector() (*recognizer.HOGPeople, error) {
	if a.detector == nil {
		det, err := recognizer.NewHOGPeople()
		if err != nil {
			return nil, fmt.Errorf("can't init person detector: %w", err)
		}
		a.detector = det
	}
	return a.detector, nil
}

func (a *app) enroller() (*enroll.Enroller, error) {
	faces, err := a.faceModel()
	if err != nil {
		return nil, err
	}
	return enroll.New(faces, a.store, a.cfg.FacesDir, a.publisher), nil
}

// deleter needs no models: deleting never looks at faces.
func (a *app) deleter() *enroll.Enroller {
	return enroll.New(nil, a.store, a.cfg.FacesDir, a.publisher)
}

// identifier wires the models and a matcher rounding to precision decimals.
func (a *app) identifier(precision int) (*pipeline.Identifier, error) {
	faces, err := a.faceModel()
	if err != nil {
		return nil, err
	}
	det, err := a.personDetector()
	if err != nil {
		return nil, err
	}
	m, err := matcher.New(matcher.Config{
		MatchThreshold:    a.cfg.MatchThreshold,
		NearMissThreshold: a.cfg.NearMissThreshold,
		Precision:         precision,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.NewIdentifier(det, faces, m, a.metrics), nil
}

func (a *app) photoPipeline() (*pipeline.Pipeline, error) {
	ident, err := a.identifier(a.cfg.PhotoConfidencePrecision)
	if err != nil {
		return nil, err
	}
	return pipeline.New(ident, a.store, pipeline.Options{
		MaxWidth: a.cfg.MaxWidth,
		Padding:  a.cfg.PhotoPadding,
		Upsample: a.cfg.Upsample,
		Workers:  a.cfg.RegionWorkers,
	}), nil
}

// storeErr counts persistence failures before handing err back.
func (a *app) storeErr(err error) error {
	if errors.Is(err, store.ErrStoreIO) {
		a.metrics.IncStoreErrors()
	}
	return err
}
