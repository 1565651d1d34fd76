// tools/cmd/seed/main.go
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
)

// seed inserts demo users with an opening balance and writes them to a CSV.
func main() {
	n := flag.Int("users", 10, "number of demo users")
	balance := flag.String("balance", "1000.00", "opening balance per user")
	currency := flag.String("currency", "EUR", "account currency")
	pin := flag.String("pin", "1234", "transaction PIN for every user (empty for none)")
	out := flag.String("out", "seed_users.csv", "CSV output path (empty to skip)")
	migrate := flag.Bool("migrate", true, "apply migrations first")
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.LoadDatabase(*configFile, *envFile)
	if err != nil {
		log.Fatal("[SEED] ", err)
	}
	config.InitLogger(cfg.Logger)

	amount, err := decimal.NewFromString(*balance)
	if err != nil || amount.IsNegative() {
		log.Fatalf("[SEED] invalid balance %q", *balance)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, cfg.Postgres.DSN, 4)
	if err != nil {
		log.Fatal("[SEED] ", err)
	}
	defer db.Close()
	st := store.New(db, *currency)
	if *migrate {
		if err := st.Migrate(ctx); err != nil {
			log.Fatal("[SEED] ", err)
		}
	}

	var hash string
	if *pin != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(*pin), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("[SEED] ", err)
		}
		hash = string(b)
	}

	var w *csv.Writer
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal("[SEED] ", err)
		}
		defer f.Close()
		w = csv.NewWriter(f)
		defer w.Flush()
		_ = w.Write([]string{"user_id", "subject", "email", "currency", "balance"})
	}

	for i := 1; i <= *n; i++ {
		subject := fmt.Sprintf("seed-%04d", i)
		u, err := st.UpsertUser(ctx, "seed", subject, fmt.Sprintf("demo%04d@example.com", i))
		if err != nil {
			log.Fatal("[SEED] ", err)
		}
		if hash != "" {
			if err := st.SetPIN(ctx, u.ID, hash); err != nil {
				log.Fatal("[SEED] ", err)
			}
		}
		acc, err := st.CreditAccount(ctx, u.ID, amount)
		if err != nil {
			log.Fatal("[SEED] ", err)
		}
		if w != nil {
			_ = w.Write([]string{u.ID, subject, u.Email, acc.Currency, acc.Balance.StringFixed(2)})
		}
	}
	log.Infof("[SEED] seeded %d users with %s %s each", *n, amount.StringFixed(2), *currency)
}
