package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/querysmith/internal/auth"
	"github.com/af-corp/querysmith/internal/store/postgres"
)

func main() {
	user := flag.String("user", "", "user ID the key acts as (required)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	rpm := flag.Int("rpm", 0, "requests per minute for this key (0 = server default)")
	dailyQuota := flag.Int64("daily-quota", 0, "model-backed runs per day (0 = server default)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	revoke := flag.String("revoke", "", "revoke this raw API key instead of creating one")
	flag.Parse()

	dsn := *dbURL
	if dsn == "" {
		dsn = postgres.DSNFromEnv(os.Getenv)
	}

	if *revoke != "" {
		if err := revokeKey(dsn, os.Getenv("REDIS_URL"), *revoke); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *user == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -user and -name are required")
		os.Exit(1)
	}

	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}

	key := auth.NewKey{
		Hash:      auth.HashKey(rawKey),
		Prefix:    auth.KeyPrefix(rawKey),
		UserID:    *user,
		Name:      *name,
		ExpiresAt: time.Now().Add(dur).UTC(),
	}
	if *rpm > 0 {
		key.RPMLimit = rpm
	}
	if *dailyQuota > 0 {
		key.DailyQuota = dailyQuota
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, postgres.DBConfig{DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	keyID, err := auth.NewCachedKeyStore(db, nil).Create(ctx, key)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== QuerySmith API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:       %s\n", keyID)
	fmt.Printf("  Key Prefix:   %s\n", key.Prefix)
	fmt.Printf("  User:         %s\n", key.UserID)
	fmt.Printf("  RPM:          %s\n", limitText(int64(*rpm)))
	fmt.Printf("  Daily quota:  %s\n", limitText(*dailyQuota))
	fmt.Printf("  Expires:      %s\n", key.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("====================================")
}

// revokeKey marks the key revoked and, when redisURL is set, evicts it from
// the lookup cache so running servers stop accepting it immediately.
func revokeKey(dsn, redisURL, rawKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, postgres.DBConfig{DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	ok, err := auth.NewCachedKeyStore(db, rdb).Revoke(ctx, auth.HashKey(strings.TrimSpace(rawKey)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no active key with prefix %s", auth.KeyPrefix(rawKey))
	}
	fmt.Printf("Revoked key %s...\n", auth.KeyPrefix(rawKey))
	return nil
}

func limitText(v int64) string {
	if v <= 0 {
		return "server default"
	}
	return fmt.Sprintf("%d", v)
}
