package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/realronaldrump/everystreet-new-sub000/internal/coverage"
	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
	"github.com/realronaldrump/everystreet-new-sub000/internal/jobs"
	"github.com/realronaldrump/everystreet-new-sub000/internal/middleware"
	"github.com/realronaldrump/everystreet-new-sub000/internal/missions"
	"github.com/realronaldrump/everystreet-new-sub000/internal/spatial"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")
	d := db.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	coverage.Init(d)
	trips.Init(d)
	jobs.Init(d)
	missions.Init(d)

	cfg := coverage.MatchConfigFromEnv()
	cache := spatial.NewIndexCache()
	matcher := coverage.NewMatcher(d, cache, cfg)
	service := coverage.NewService(d)
	jobStore := jobs.NewStore(d)
	tripStore := trips.NewStore(d)
	backfiller := coverage.NewBackfiller(matcher, service, jobStore, tripStore, cfg)

	coverageHandlers := &coverage.Handlers{
		Service:    service,
		Matcher:    matcher,
		Backfiller: backfiller,
		Jobs:       jobStore,
		Trips:      tripStore,
	}
	missionHandlers := &missions.Handlers{Service: missions.NewService(d)}

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)

	r.Mount("/coverage", coverage.SetupRoutes(coverageHandlers))
	r.Mount("/missions", missions.SetupRoutes(missionHandlers))

	fmt.Println("Server listening on port :" + port + "...")

	http.ListenAndServe("0.0.0.0:"+port, r)
}
