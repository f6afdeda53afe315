// Seeding tool that creates an administrator and a funded agent, then prints
// access tokens for both.
// Usage (env overrides):
//
//	SEED_ADMIN_EMAIL=admin@example.com SEED_AGENT_EMAIL=agent@example.com SEED_AGENT_BALANCE=50000
//
// Reads DATABASE_URL and other core config via devreg/pkg/config
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"devreg/internal/auth"
	"devreg/internal/repository/postgres"
	"devreg/pkg/config"
	"devreg/pkg/domain"
	regerrors "devreg/pkg/errors"
	"devreg/pkg/logger"
)

func main() {
	log := logger.New("seed")

	cfg := config.Load()
	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	ctx := context.Background()
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	if err := postgres.MigrateUp(db.DB); err != nil {
		log.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}

	userRepo := postgres.NewUserRepository(db)
	agentRepo := postgres.NewAgentRepository(db)
	authService := auth.NewService(userRepo, cfg.JWT.Secret, 24*time.Hour)

	admin := ensureUser(ctx, authService, log, getenv("SEED_ADMIN_EMAIL", "admin@example.com"), getenv("SEED_PASSWORD", "Password123"), domain.RoleAdmin)
	agent := ensureUser(ctx, authService, log, getenv("SEED_AGENT_EMAIL", "agent@example.com"), getenv("SEED_PASSWORD", "Password123"), domain.RoleAgent)

	if _, err := agentRepo.FindByUserID(ctx, agent.ID); err != nil {
		now := time.Now().UTC()
		if err := agentRepo.Create(ctx, &domain.Agent{
			UserID:        agent.ID,
			WalletBalance: decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			log.Fatal("Failed to create agent", map[string]interface{}{"error": err.Error()})
		}
	}

	balance, err := decimal.NewFromString(getenv("SEED_AGENT_BALANCE", "50000"))
	if err != nil {
		log.Fatal("Invalid SEED_AGENT_BALANCE", map[string]interface{}{"error": err.Error()})
	}
	err = agentRepo.Credit(ctx, agent.ID, balance, "seed-"+agent.ID.String())
	if err != nil && !stderrors.Is(err, regerrors.ErrDuplicateRequest) {
		log.Fatal("Failed to fund agent wallet", map[string]interface{}{"error": err.Error()})
	}

	for _, u := range []*domain.User{admin, agent} {
		token, expires, err := authService.IssueToken(u)
		if err != nil {
			log.Fatal("Failed to issue token", map[string]interface{}{"error": err.Error()})
		}
		fmt.Printf("%s (%s) expires %s\n%s\n\n", u.Email, u.Role, expires.Format(time.RFC3339), token)
	}
	fmt.Println("OK: admin and agent seeded")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func ensureUser(ctx context.Context, svc *auth.Service, log logger.Logger, email, password string, role domain.Role) *domain.User {
	if existing, err := svc.FindOwner(ctx, email); err == nil {
		log.Info("User already exists", map[string]interface{}{"email": email})
		return existing
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: string(role),
		LastName:  "Seed",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.CreateUser(ctx, user, password); err != nil {
		log.Fatal("Failed to create user", map[string]interface{}{"email": email, "error": err.Error()})
	}
	log.Info("User created", map[string]interface{}{"email": email, "role": role})
	return user
}
