package main

import (
	"context"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/routes"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)

	if cfg.AdminPassword != "" {
		hash, err := utils.HashPassword(cfg.AdminPassword)
		if err != nil {
			utils.Sugar.Fatalf("invalid ADMIN_PASSWORD: %v", err)
		}
		admin, created, err := services.EnsureAdmin(context.Background(), db, cfg.AdminUsername, cfg.AdminEmail, hash)
		if err != nil {
			utils.Sugar.Fatalf("seed admin account: %v", err)
		}
		if created {
			utils.Sugar.Infof("created admin account %q (id=%d)", admin.Username, admin.ID)
		}
	}

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
