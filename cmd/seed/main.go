package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/fleamarket-backend/internal/bootstrap"
	"github.com/shinyyama/fleamarket-backend/internal/config"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
	"github.com/shinyyama/fleamarket-backend/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := bootstrap.OpenDB(cfg)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, gdb)
	if err != nil {
		return err
	}
	repo := repository.NewListingRepository(store, cfg.Location())

	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	if !shouldSeed(len(existing), os.Getenv("FORCE_SEED")) {
		log.Printf("catalog already has %d listings; skipping seed (set FORCE_SEED=true to override)", len(existing))
		return nil
	}

	seller := service.Actor{ID: envOr("SEED_SELLER_ID", "seed-seller"), Name: envOr("SEED_SELLER_NAME", "運営スタッフ")}
	svc := service.NewListingService(repo)
	n := 0
	for _, in := range buildSeedListings() {
		if _, err := svc.Create(ctx, seller, in); err != nil {
			return fmt.Errorf("create %q: %w", in.Title, err)
		}
		n++
	}
	log.Printf("seeded %d listings", n)
	return nil
}

func shouldSeed(existing int, force string) bool {
	return existing == 0 || strings.EqualFold(force, "true")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func buildSeedListings() []service.CreateListingInput {
	type cat struct {
		Name      string
		Price     int64
		Condition string
		Titles    []string
	}
	categories := []cat{
		{Name: "衣類", Price: 1200, Condition: "目立った傷や汚れなし", Titles: []string{"オーガニックコットンTシャツ", "デニムジャケット", "ニットカーディガン"}},
		{Name: "雑貨", Price: 800, Condition: "未使用に近い", Titles: []string{"二重ガラスマグ", "ステンレスボトル", "ウッドカッティングボード"}},
		{Name: "本", Price: 300, Condition: "やや傷や汚れあり", Titles: []string{"SF小説アンソロジー", "統計学入門", "英単語帳"}},
		{Name: "その他", Price: 500, Condition: "未使用", Titles: []string{"ケーブルオーガナイザー", "トラベルアダプター"}},
	}

	var out []service.CreateListingInput
	for _, c := range categories {
		for i, t := range c.Titles {
			out = append(out, service.CreateListingInput{
				Title:       t,
				Price:       c.Price + int64(i*100),
				Description: fmt.Sprintf("%s です。自宅保管品のため、気になる方はご遠慮ください。", t),
				Category:    c.Name,
				Condition:   c.Condition,
				Images: []string{
					picsumURL(c.Name, i+1, 1),
					picsumURL(c.Name, i+1, 2),
				},
			})
		}
	}
	return out
}

func picsumURL(category string, itemIndex, k int) string {
	return fmt.Sprintf("https://picsum.photos/seed/%x-%d-%d/600/600", category, itemIndex, k)
}
