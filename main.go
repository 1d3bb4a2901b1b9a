package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"medlink/m/domain"
	"medlink/m/internal/alternatives"
	"medlink/m/internal/api"
	"medlink/m/internal/auth"
	"medlink/m/internal/config"
	"medlink/m/internal/database"
	"medlink/m/internal/inventory"
	"medlink/m/internal/logger"
	"medlink/m/internal/metrics"
	"medlink/m/internal/migrations"
	"medlink/m/internal/redisclient"
	"medlink/m/internal/search"
	"medlink/m/internal/seed"
	"medlink/m/internal/sos"
	"medlink/m/internal/store"
)

func main() {
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           "medlink",
		Short:         "Medicine discovery and SOS broadcast server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			cfg = config.Load()
			logger.Init(cfg.Env)
		},
	}

	rootCmd.AddCommand(serveCmd(&cfg))
	rootCmd.AddCommand(migrateCmd(&cfg))
	rootCmd.AddCommand(seedCmd(&cfg))
	rootCmd.AddCommand(tokenCmd(&cfg))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(*cfg)
		},
	}
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Info().Str("driver", cfg.Database.Driver).Msg("schema is up to date")
			return nil
		},
	}
}

func seedCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load alternative mappings and the demo catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.SeedDir
			}

			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := seed.Load(cmd.Context(), store.New(db), dir)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d alternative(s), %d pharmacy(ies), %d stock entry(ies) from %s\n",
				res.Alternatives, res.Pharmacies, res.Stock, dir)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory holding alternatives.csv, pharmacies.csv and stock.csv (defaults to SEED_DIR)")
	return cmd
}

func tokenCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user-id")
			role, _ := cmd.Flags().GetString("role")
			pharmacyID, _ := cmd.Flags().GetInt64("pharmacy-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}

			token, err := auth.NewIssuer(cfg.Server.Secret).Generate(domain.Actor{
				UserID:     userID,
				Role:       role,
				PharmacyID: pharmacyID,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Int64("user-id", 0, "User id carried in the token")
	cmd.Flags().String("role", domain.RolePatient, "patient, pharmacy or admin")
	cmd.Flags().Int64("pharmacy-id", 0, "Pharmacy id (pharmacy role only)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func openDatabase(cfg config.Config) (*sqlx.DB, error) {
	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runServer(cfg config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	st := store.New(db)
	var resolver alternatives.Resolver = alternatives.NewDefault(st, st)
	var notifier sos.Notifier = sos.NopNotifier{}

	if cfg.Redis.Addr != "" {
		rc, err := redisclient.New(context.Background(), redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		resolver = alternatives.NewCached(resolver, redisclient.NewCache(rc), cfg.Redis.AlternativesTTL)
		notifier = redisclient.NewPublisher(rc, cfg.Redis.SOSChannel)
	} else {
		log.Warn().Msg("REDIS_ADDR not set; alternatives are not cached and SOS events are not broadcast")
	}

	handler := api.New(api.Deps{
		Search:      search.NewEngine(st, resolver),
		SOS:         sos.NewService(st, notifier),
		Inventory:   inventory.NewService(st),
		Issuer:      auth.NewIssuer(cfg.Server.Secret),
		Metrics:     metrics.New(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("MedLink server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
