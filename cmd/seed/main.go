package main

import (
	"context"
	"errors"
	"flag"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sykell/igprovision/internal/config"
	"github.com/sykell/igprovision/internal/db"
	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/service"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	ConfigPath string
	Username   string
	Password   string
	Folders    []string
	Force      bool
}

// NewSeedConfig creates a new seed configuration from flags
func NewSeedConfig() *SeedConfig {
	configPath := flag.String("config", "", "Path to an optional ini config file")
	username := flag.String("username", "admin", "Operator username")
	password := flag.String("password", "adminpass", "Operator password")
	force := flag.Bool("force", false, "Force recreation of the operator")
	var folders multiFlag
	flag.Var(&folders, "folder", "Folder to create (repeatable)")

	flag.Parse()

	return &SeedConfig{
		ConfigPath: *configPath,
		Username:   *username,
		Password:   *password,
		Folders:    folders,
		Force:      *force,
	}
}

type multiFlag []string

func (m *multiFlag) String() string { return "" }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	seed := NewSeedConfig()

	cfg, err := config.Load(seed.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)

	if seed.Username == "" {
		log.Fatal().Msg("Username cannot be empty")
	}
	if len(seed.Password) < 6 {
		log.Fatal().Msg("Password must be at least 6 characters long")
	}

	log.Info().Msg("Starting database seeding...")

	dbConn, err := db.InitDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	store := service.NewStore(dbConn)
	ctx := context.Background()

	existing, err := store.GetUserByUsername(ctx, seed.Username)
	switch {
	case err == nil && !seed.Force:
		log.Info().Str("username", seed.Username).Msg("Operator already exists. Use -force to recreate.")
	case err == nil:
		log.Info().Str("username", seed.Username).Msg("Recreating operator...")
		if err := store.DeleteUser(ctx, existing.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to delete existing operator")
		}
		createOperator(ctx, store, seed)
	case errors.Is(err, gorm.ErrRecordNotFound):
		createOperator(ctx, store, seed)
	default:
		log.Fatal().Err(err).Msg("Database error checking existing operator")
	}

	for _, name := range seed.Folders {
		folder, err := store.InsertFolder(ctx, name)
		if errors.Is(err, service.ErrFolderExists) {
			log.Info().Str("folder", name).Msg("Folder already exists")
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("folder", name).Msg("Failed to create folder")
		}
		log.Info().Str("folder", folder.Name).Uint("id", folder.ID).Msg("Created folder")
	}

	log.Info().Msg("Database seeding completed successfully")
}

func createOperator(ctx context.Context, store *service.Store, seed *SeedConfig) {
	user, err := store.CreateUser(ctx, seed.Username, seed.Password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create operator")
	}
	log.Info().Str("username", user.Username).Uint("id", user.ID).Msg("Created operator")
}
