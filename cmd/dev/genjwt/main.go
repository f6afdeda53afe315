package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"devreg/internal/auth"
	"devreg/pkg/domain"
)

func main() {
	role := flag.String("role", "ADMIN", "USER, AGENT or ADMIN")
	email := flag.String("email", "admin.user@example.com", "email claim")
	id := flag.String("id", "", "user id; random when empty")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-123"
	}

	userID := uuid.New()
	if *id != "" {
		parsed, err := uuid.Parse(*id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid -id:", err)
			os.Exit(2)
		}
		userID = parsed
	}

	signed, _, err := auth.SignToken(secret, userID, *email, domain.Role(strings.ToUpper(*role)), *ttl)
	if err != nil {
		panic(err)
	}
	fmt.Println(signed)
}
