package main

import (
	"context"
	"flag"
	"os"

	"github.com/labworks/platform/pkg/common/config"
	"github.com/labworks/platform/pkg/common/database"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/tenant"
)

// create-superadmin provisions the single system-wide SUPER_ADMIN account.
// It is a one-shot operator tool, not part of the serving path.
func main() {
	fullName := flag.String("name", "", "full name of the super admin")
	email := flag.String("email", "", "email address")
	password := flag.String("password", "", "password (or set SUPERADMIN_PASSWORD)")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	if *password == "" {
		*password = os.Getenv("SUPERADMIN_PASSWORD")
	}
	if *fullName == "" || *email == "" || *password == "" {
		logger.Log.Fatal("usage: create-superadmin -name NAME -email EMAIL [-password PASSWORD]")
	}

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	identityRepo := identity.NewRepository(db)
	if err := identityRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate identity tables")
	}

	service := identity.NewService(identityRepo, tenant.NewRepository(db))
	user, err := service.CreateSuperAdmin(context.Background(), *fullName, *email, *password)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to create super admin")
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("super admin created")
}
