package service

import (
	"log/slog"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/notify"
	redisrepo "github.com/lahjaprojekti/lahja-go/internal/repository/redis"
	"github.com/lahjaprojekti/lahja-go/internal/service/admin"
	"github.com/lahjaprojekti/lahja-go/internal/service/allocator"
	"github.com/lahjaprojekti/lahja-go/internal/service/assign"
	"github.com/lahjaprojekti/lahja-go/internal/service/lifecycle"
	"github.com/lahjaprojekti/lahja-go/internal/service/query"
	"github.com/lahjaprojekti/lahja-go/internal/store"
)

type Services struct {
	Allocator *allocator.Service
	Lifecycle *lifecycle.Service
	Assign    *assign.Service
	Notify    *notify.Service
	Query     *query.Service
	Admin     *admin.Service
}

type Config struct {
	Allocator allocator.Config
	Notify    notify.Config
	Query     query.Config
}

func NewServices(
	s store.Store,
	bus feed.Bus,
	cache *redisrepo.Cache,
	limiter *redisrepo.SlidingWindowLimiter,
	sender notify.TextSender,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Allocator: allocator.New(s, bus, clk, limiter, cfg.Allocator),
		Lifecycle: lifecycle.New(s, bus, clk),
		Assign:    assign.New(s, bus),
		Notify:    notify.New(s, sender, clk, logger, cfg.Notify),
		Query:     query.New(s, cache, cfg.Query),
		Admin:     admin.New(s, bus),
	}
}
