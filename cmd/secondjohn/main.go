package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/secondjohn/internal/app"
	"github.com/dropDatabas3/secondjohn/internal/config"
	httpserver "github.com/dropDatabas3/secondjohn/internal/http/server"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/session"
)

func main() {
	// .env es opcional; las vars reales del entorno pisan al archivo
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "secondjohn",
		Short: "Orquestador de segundo factor entre el IdP externo y el dashboard",
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", ""), "ruta al config.yaml (env CONFIG_PATH)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servicio HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var keyPath string
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera el keypair Ed25519 de firma de sesiones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(configPath, keyPath)
		},
	}
	keygenCmd.Flags().StringVar(&keyPath, "out", "", "ruta del archivo de clave (default: session.key_path del config)")

	root.AddCommand(serveCmd, keygenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "secondjohn",
		Version:     app.Version,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(httpserver.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, a.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		a.RunSweeper(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.L().Error("servicio terminó con error", logger.Err(err))
		return err
	}
	logger.L().Info("servicio apagado")
	return nil
}

func runKeygen(configPath, keyPath string) error {
	if keyPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		keyPath = cfg.Session.KeyPath
	}

	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("keygen: %s ya existe; borre el archivo para regenerar", keyPath)
	}

	kp, err := session.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := kp.Save(keyPath); err != nil {
		return err
	}
	fmt.Printf("keypair generado: %s (kid=%s)\n", keyPath, kp.KID)
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
