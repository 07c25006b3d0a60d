package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hatch-backend/internal/auth"
	"hatch-backend/internal/database"

	"gorm.io/gorm"
)

func openDatabase(databaseURL string) *gorm.DB {
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	db, err := database.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func createUser(databaseURL, email, password string) {
	if email == "" || password == "" {
		log.Fatalf("both -email and -password are required")
	}

	db := openDatabase(databaseURL)

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Error hashing password: %v", err)
	}

	user, err := database.CreateUser(context.Background(), db, email, hash)
	if err != nil {
		log.Fatalf("Error creating user: %v", err)
	}

	fmt.Println(user.Id)
}

func issueToken(databaseURL, email, secret string, expiration time.Duration) {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		log.Fatalf("a jwt secret must be passed with -secret or JWT_SECRET")
	}

	db := openDatabase(databaseURL)

	user, err := database.GetUserByEmail(context.Background(), db, email)
	if err != nil {
		log.Fatalf("Error finding user '%s': %v", email, err)
	}

	token, err := auth.NewTokenIssuer(secret, expiration).NewAccessToken(user.Id, user.Email)
	if err != nil {
		log.Fatalf("Error creating token: %v", err)
	}

	fmt.Println(token)
}

func main() {
	createArgs := flag.NewFlagSet("create-user", flag.ExitOnError)
	createDB := createArgs.String("db", "", "Database url, defaults to DATABASE_URL")
	email := createArgs.String("email", "", "Email of the new user")
	password := createArgs.String("password", "", "Password of the new user")

	tokenArgs := flag.NewFlagSet("token", flag.ExitOnError)
	tokenDB := tokenArgs.String("db", "", "Database url, defaults to DATABASE_URL")
	tokenEmail := tokenArgs.String("email", "", "Email of the user to issue a token for")
	secret := tokenArgs.String("secret", "", "Signing secret, defaults to JWT_SECRET")
	expiration := tokenArgs.Duration("expiration", 24*time.Hour, "Token lifetime")

	if len(os.Args) < 2 {
		log.Fatalf("expected 'create-user' or 'token' subcommands")
	}

	switch os.Args[1] {
	case "create-user":
		if err := createArgs.Parse(os.Args[2:]); err != nil {
			log.Fatalf("Error parsing arguments: %v", err)
		}
		createUser(*createDB, *email, *password)
	case "token":
		if err := tokenArgs.Parse(os.Args[2:]); err != nil {
			log.Fatalf("Error parsing arguments: %v", err)
		}
		issueToken(*tokenDB, *tokenEmail, *secret, *expiration)
	default:
		log.Fatalf("unknown subcommand '%s', expected 'create-user' or 'token'", os.Args[1])
	}
}
