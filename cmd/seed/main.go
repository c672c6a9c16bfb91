package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"giftledger/internal/config"
	"giftledger/internal/db"
	"giftledger/internal/errors"
	"giftledger/internal/lock"
	"giftledger/internal/logging"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/internal/service"
)

// SeedCard is one card to issue.
type SeedCard struct {
	SKU         string `json:"sku"`
	Price       string `json:"price"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Note        string `json:"note"`
	EGift       bool   `json:"e_gift"`
}

func main() {
	source := flag.String("file", "gift_cards.json", "path or http(s) URL of the JSON seed file")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log)

	gormDB, err := db.Open(cfg.Database.DSN, db.Options{MaxOpenConns: cfg.Database.MaxConns})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seeds, err := loadSeeds(*source)
	if err != nil {
		log.Fatalf("Failed to load seed file: %v", err)
	}
	log.WithField("count", len(seeds)).Info("loaded seed cards")

	repos := repository.New(gormDB)
	cards := service.NewGiftCardService(repos, lock.NewMutexLocker(), nil, nil, service.GiftCardOptions{
		CodeLength: cfg.GiftCard.CodeLength,
	})

	issued, skipped := 0, 0
	for _, seed := range seeds {
		card, err := seedCard(ctx, repos, cards, seed)
		if err != nil {
			log.WithError(err).WithField("sku", seed.SKU).Warn("skipping seed card")
			skipped++
			continue
		}
		log.WithFields(log.Fields{
			"card_id": card.ID,
			"code":    card.Code,
			"value":   card.CurrentValue.StringFixed(2),
		}).Info("issued gift card")
		issued++
	}

	log.WithFields(log.Fields{"issued": issued, "skipped": skipped}).Info("seed completed")
}

// loadSeeds reads seed cards from a local file or an HTTP URL.
func loadSeeds(source string) ([]SeedCard, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: status code %d", source, resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()

	var seeds []SeedCard
	if err := json.NewDecoder(r).Decode(&seeds); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return seeds, nil
}

// seedCard finds or creates the card's variant and issues the card.
func seedCard(ctx context.Context, repos *repository.Repositories, cards *service.GiftCardService, seed SeedCard) (*model.GiftCard, error) {
	price, err := decimal.NewFromString(seed.Price)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("invalid price %q: %w", seed.Price, errors.ErrInvalidAmount)
	}

	variant, err := repos.Catalog.FindVariantBySKU(ctx, seed.SKU)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		product := &model.Product{
			Name:        "Gift Card " + seed.SKU,
			Slug:        strings.ToLower(seed.SKU),
			IsGiftCard:  !seed.EGift,
			IsEGiftCard: seed.EGift,
		}
		if err := repos.Catalog.CreateProduct(ctx, product); err != nil {
			return nil, fmt.Errorf("create product: %w", err)
		}
		variant = &model.Variant{ProductID: product.ID, SKU: seed.SKU, Price: price}
		if err := repos.Catalog.CreateVariant(ctx, variant); err != nil {
			return nil, fmt.Errorf("create variant: %w", err)
		}
	}

	return cards.Issue(ctx, service.IssueParams{
		VariantID:   variant.ID,
		Email:       seed.Email,
		Name:        seed.Name,
		SenderEmail: seed.SenderEmail,
		SenderName:  seed.SenderName,
		Note:        seed.Note,
	})
}
