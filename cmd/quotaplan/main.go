package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/quota"
	"github.com/pawpress/server/internal/sqlinline"
)

// Plan presets mirror the public pricing page.
var planPresets = map[string][3]int{
	"starter": {100, 10, 1000},
	"studio":  {500, 50, 5000},
	"agency":  {2000, 200, 20000},
}

func main() {
	var (
		tenantFlag  string
		planFlag    string
		imagesFlag  int
		videosFlag  int
		creditsFlag int
	)

	flag.StringVar(&tenantFlag, "tenant", "", "tenant ID to configure")
	flag.StringVar(&planFlag, "plan", "", "plan preset (starter, studio, agency)")
	flag.IntVar(&imagesFlag, "images", 0, "monthly image limit override (<=0 keeps the preset)")
	flag.IntVar(&videosFlag, "videos", 0, "monthly video limit override (<=0 keeps the preset)")
	flag.IntVar(&creditsFlag, "credits", 0, "monthly credit limit override (<=0 keeps the preset)")
	flag.Parse()

	tenant := strings.TrimSpace(tenantFlag)
	if tenant == "" {
		exitWithError(errors.New("-tenant is required"))
	}

	images, videos, credits := imagesFlag, videosFlag, creditsFlag
	if plan := strings.TrimSpace(strings.ToLower(planFlag)); plan != "" {
		preset, ok := planPresets[plan]
		if !ok {
			exitWithError(fmt.Errorf("unsupported plan %q", plan))
		}
		if images <= 0 {
			images = preset[0]
		}
		if videos <= 0 {
			videos = preset[1]
		}
		if credits <= 0 {
			credits = preset[2]
		}
	}
	if images <= 0 && videos <= 0 && credits <= 0 {
		exitWithError(errors.New("nothing to set: pass -plan or at least one explicit limit"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "quotaplan").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	resetsOn := quota.NextBoundary(time.Now().UTC())
	row := runner.QueryRow(ctx, sqlinline.QUpsertQuotaPlan, tenant, images, videos, credits, resetsOn)

	var (
		outTenant   string
		outImages   int
		imagesUsed  int
		outVideos   int
		videosUsed  int
		outCredits  int
		creditsUsed int
		outResetsOn time.Time
	)
	if err := row.Scan(&outTenant, &outImages, &imagesUsed, &outVideos, &videosUsed, &outCredits, &creditsUsed, &outResetsOn); err != nil {
		exitWithError(fmt.Errorf("failed to upsert quota plan: %w", err))
	}

	fmt.Printf("Tenant %s quota updated\n", outTenant)
	fmt.Printf("images=%d/%d videos=%d/%d credits=%d/%d\n", imagesUsed, outImages, videosUsed, outVideos, creditsUsed, outCredits)
	fmt.Printf("resets_on=%s\n", outResetsOn.Format("2006-01-02"))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
