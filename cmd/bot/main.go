package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/avatars"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/cache"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/collectives"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/config"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/parser"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/search"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/sync"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/tracker"
)

func main() {
	cfg := config.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := context.Background()

	org, err := config.LoadOrganisation(cfg.OrgConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.OrgConfigPath).Msg("organisation config failed")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	lru, err := cache.New(cfg.CacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("cache init failed")
	}
	docs := store.New(store.NewPostgresBackend(db), lru, log)

	var meiliClient *search.Meili
	var indexer search.Indexer = search.NewMemoryIndex()
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
		indexer = meiliClient
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), log)

	var pageTracker *tracker.RedisTracker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		pageTracker, err = tracker.NewRedisTracker(cfg.RedisURL, 7*24*time.Hour)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, processing all pages every cycle")
		} else {
			defer pageTracker.Close()
		}
	}

	resolver := parser.NewGroupResolver(org, docs)
	groups := parser.NewGroupParser(org, docs, resolver, log)
	extractor := parser.NewDecisionExtractor(org, docs, log)
	protocols := parser.NewProtocolParser(org, docs, resolver, extractor, log)
	engine := sync.NewEngine(docs, indexer, search.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap), resolver, groups, protocols, log)

	client := collectives.NewClient(cfg.NextcloudBaseURL, cfg.AdminUsername, cfg.AdminPassword, log)
	var loaderTracker collectives.Tracker
	if pageTracker != nil {
		loaderTracker = pageTracker
	}
	loader := collectives.NewLoader(client, loaderTracker, cfg.CollectiveID, log)

	var mirror *avatars.Mirror
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mirror, err = avatars.NewMirror(ctx, avatars.Config{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			Bucket:        cfg.AvatarBucket,
			BaseURL:       cfg.NextcloudBaseURL,
			AdminUsername: cfg.AdminUsername,
			AdminPassword: cfg.AdminPassword,
			Refresh:       cfg.AvatarRefresh,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("avatar mirror disabled")
		}
	}

	r := &runner{
		loader:  loader,
		engine:  engine,
		tracker: pageTracker,
		mirror:  mirror,
		store:   docs,
		log:     log,
	}

	runCtx, stop := context.WithCancel(ctx)
	go r.loop(runCtx, cfg.SleepInterval)

	server := &http.Server{
		Addr:              getAddr(),
		Handler:           newHandler(searchService),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("bot listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func getAddr() string {
	if addr := os.Getenv("BOT_ADDR"); addr != "" {
		return addr
	}
	return ":8090"
}

// runner drives periodic sync cycles until its context is cancelled.
type runner struct {
	loader  *collectives.Loader
	engine  *sync.Engine
	tracker *tracker.RedisTracker
	mirror  *avatars.Mirror
	store   *store.Store
	log     zerolog.Logger
}

func (r *runner) loop(ctx context.Context, interval time.Duration) {
	r.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *runner) cycle(ctx context.Context) {
	start := time.Now()

	pages, err := r.loader.LoadChanged(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("page load failed, retrying next cycle")
		return
	}

	results := r.engine.ProcessPages(ctx, pages)
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		if r.tracker != nil {
			page := pages[i]
			if err := r.tracker.MarkProcessed(ctx, page.OCS.ID, page.Content, page.OCS.Timestamp); err != nil {
				r.log.Warn().Err(err).Int("page_id", page.OCS.ID).Msg("fingerprint save failed")
			}
		}
	}

	if r.mirror != nil {
		r.mirror.MirrorAll(ctx, r.memberUsernames(ctx))
	}

	r.log.Info().Int("pages", len(results)).Int("failed", failed).
		Dur("took", time.Since(start)).Msg("sync cycle done")
}

// memberUsernames collects every user mentioned in any group.
func (r *runner) memberUsernames(ctx context.Context) []string {
	groups, err := store.Find[model.Group](ctx, r.store, store.Query{
		Type:  model.TypeGroup,
		Limit: 1000,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("group list for avatar mirror failed")
		return nil
	}

	seen := make(map[string]struct{})
	var usernames []string
	for _, g := range groups {
		for _, member := range g.AllMembers() {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			usernames = append(usernames, member)
		}
	}
	return usernames
}

func newHandler(svc *search.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		q := search.Query{
			Text:    r.URL.Query().Get("q"),
			Subtype: r.URL.Query().Get("subtype"),
			GroupID: r.URL.Query().Get("group"),
		}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			q.Limit = limit
		}
		if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			q.Offset = offset
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Search(r.Context(), q)); err != nil {
			http.Error(w, "encoding failed", http.StatusInternalServerError)
		}
	})

	return mux
}
