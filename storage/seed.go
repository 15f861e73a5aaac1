package storage

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

var (
	seedFirstNames = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi", "Ivan", "Judy", "Mallory", "Niaj", "Olivia", "Peggy", "Rupert", "Sybil", "Trent", "Victor", "Walter"}
	seedLastNames  = []string{"Adams", "Baker", "Clark", "Davis", "Evans", "Fisher", "Garcia", "Hughes", "Irwin", "Jones", "King", "Lopez", "Moore", "Nolan"}
)

// RandomName builds a random "First Last" user name.
func RandomName() string {
	return fmt.Sprintf("%s %s", seedFirstNames[rand.Intn(len(seedFirstNames))], seedLastNames[rand.Intn(len(seedLastNames))])
}

// Seed appends size random users to the store.
func Seed(ctx context.Context, s Store, size int) error {
	if size <= 0 {
		return fmt.Errorf("%s: must be GT 0", "size")
	}

	log.Printf("Seeding %d items...", size)
	for i := 0; i < size; i++ {
		if _, err := s.Append(ctx, RandomName(), time.Now().UTC()); err != nil {
			return fmt.Errorf("item [%d]: %w", i, err)
		}
	}
	log.Printf("Done")

	return nil
}
