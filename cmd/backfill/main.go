package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/realronaldrump/everystreet-new-sub000/internal/coverage"
	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
	"github.com/realronaldrump/everystreet-new-sub000/internal/jobs"
	"github.com/realronaldrump/everystreet-new-sub000/internal/spatial"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

func main() {
	areaFlag := flag.String("area", "", "coverage area id or name (required)")
	sinceFlag := flag.String("since", "", "only consider trips ending on or after this date (YYYY-MM-DD or RFC3339)")
	dryRun := flag.Bool("dry-run", false, "report what would be processed without writing")
	flag.Parse()

	if *areaFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env.local")
	d := db.Connect()
	coverage.Init(d)
	trips.Init(d)
	jobs.Init(d)

	cfg := coverage.MatchConfigFromEnv()
	service := coverage.NewService(d)
	matcher := coverage.NewMatcher(d, spatial.NewIndexCache(), cfg)
	jobStore := jobs.NewStore(d)
	tripStore := trips.NewStore(d)
	backfiller := coverage.NewBackfiller(matcher, service, jobStore, tripStore, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	area := resolveArea(ctx, service, *areaFlag)
	since := parseSince(*sinceFlag)

	fmt.Printf("Area: %s (%s, version %d, status %s)\n", area.Name, area.ID, area.AreaVersion, area.Status)
	if since != nil {
		fmt.Printf("Since: %s\n", since.Format(time.RFC3339))
	}

	total, err := tripStore.Count(ctx, since)
	if err != nil {
		log.Fatalf("count trips: %v", err)
	}
	fmt.Printf("Trips to process: %d\n", total)

	if *dryRun {
		fmt.Println("Mode: DRY RUN (no database writes)")
		return
	}
	fmt.Println("Mode: LIVE (will write to database)")

	job, err := jobStore.Create(ctx, "coverage_backfill")
	if err != nil {
		log.Fatalf("create job: %v", err)
	}
	fmt.Printf("Job: %s\n\n", job.ID)

	updated, err := backfiller.BackfillCoverageForArea(ctx, area.ID, since, job.ID, func(stage string, progress int, message string) {
		fmt.Printf("  [%3d%%] %-10s %s\n", progress, stage, message)
	})
	if err != nil {
		log.Fatalf("backfill failed: %v", err)
	}

	stats, err := service.GetArea(ctx, area.ID)
	if err != nil {
		log.Fatalf("re-read area: %v", err)
	}
	fmt.Printf("\nDone: %d segment states written\n", updated)
	fmt.Printf("Coverage: %.2f%% (%d/%d segments driven)\n",
		stats.CoveragePercentage, stats.DrivenSegments, stats.TotalSegments)
}

func resolveArea(ctx context.Context, service *coverage.Service, ref string) *coverage.CoverageArea {
	if id, err := uuid.Parse(ref); err == nil {
		area, err := service.GetArea(ctx, id)
		if err != nil {
			log.Fatalf("area %s: %v", id, err)
		}
		return area
	}

	areas, err := service.ListAreas(ctx)
	if err != nil {
		log.Fatalf("list areas: %v", err)
	}
	for i := range areas {
		if areas[i].Name == ref {
			return &areas[i]
		}
	}
	log.Fatalf("no coverage area named %q", ref)
	return nil
}

func parseSince(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	log.Fatalf("could not parse --since value %q", s)
	return nil
}
