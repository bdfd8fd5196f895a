package main

import (
    "context"
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/cinecore/movie-booking/internal/booking"
    "github.com/cinecore/movie-booking/internal/catalog"
    "github.com/cinecore/movie-booking/internal/config"
    "github.com/cinecore/movie-booking/internal/database"
    "github.com/cinecore/movie-booking/internal/handler"
    "github.com/cinecore/movie-booking/internal/hold"
    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/middleware"
    "github.com/cinecore/movie-booking/internal/model"
    "github.com/cinecore/movie-booking/internal/payment"
    "github.com/cinecore/movie-booking/internal/queue"
    "github.com/cinecore/movie-booking/internal/repository"
    "github.com/cinecore/movie-booking/internal/router"
)

func main() {
    _ = godotenv.Load() // .env is optional outside dev
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    catalogRepo := repository.NewCatalogRepo(db)
    slotRepo := repository.NewSeatSlotRepo(db)
    holdRepo := repository.NewHoldRepo(db)
    bookingRepo := repository.NewBookingRepo(db)

    led := ledger.New(slotRepo)
    if err := seedLedger(context.Background(), led, catalogRepo, slotRepo); err != nil {
        log.Fatalf("ledger seed: %v", err)
    }

    holds := hold.NewManager(led, holdRepo)
    gateway := payment.NewGateway(cfg.PaymentBaseURL)
    notifier := queue.NewPublisher(queue.BrokerURL())
    orch := booking.NewOrchestrator(led, holds, catalogRepo, gateway, notifier, bookingRepo, cfg.HoldTTL)
    reconciler := booking.NewReconciler(orch)

    // Payment outcomes arrive over the broker; the webhook is the second
    // delivery path and both funnel into the same reconciler.
    go func() {
        if err := queue.StartPaymentConsumer(context.Background(), queue.BrokerURL(), reconciler.OnPaymentOutcome); err != nil {
            log.Printf("payment-consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    e.HideBanner = true

    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable, rate limiting disabled")
    }
    rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

    bookingHandler := handler.NewBookingHandler(orch, led, cfg.HoldTTL)
    paymentHandler := handler.NewPaymentHandler(reconciler)
    router.RegisterRoutes(e, bookingHandler, paymentHandler)
    router.RegisterBooking(e, bookingHandler, cfg.JWTSecret, rl)

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}

// seedLedger registers every bookable show with the ledger.  Persisted
// slot states are replayed so booked seats survive a restart; HELD seats
// fall back to AVAILABLE because holds are process-local and their
// timers died with the previous process.
func seedLedger(ctx context.Context, led *ledger.Ledger, cat catalog.Catalog, slots *repository.SeatSlotRepo) error {
    showIDs, err := cat.ListBookableShows(ctx)
    if err != nil {
        return err
    }
    for _, showID := range showIDs {
        show, err := cat.GetShow(ctx, showID)
        if err != nil {
            return err
        }
        seats, err := cat.GetSeatSlots(ctx, showID)
        if err != nil {
            return err
        }
        seeds := make([]ledger.SeatSeed, 0, len(seats))
        byID := make(map[uint64]int, len(seats))
        for i, s := range seats {
            byID[s.SeatID] = i
            seeds = append(seeds, ledger.SeatSeed{SeatID: s.SeatID, PriceCents: s.PriceCents})
        }

        persisted, err := slots.LoadShowSlots(ctx, showID)
        if err != nil {
            return err
        }
        recovered := 0
        for _, p := range persisted {
            i, ok := byID[p.SeatID]
            if !ok {
                continue // seat removed from the layout since last run
            }
            seeds[i].Version = p.Version
            if p.State == model.SeatBooked {
                seeds[i].State = p.State
                seeds[i].OwnerToken = p.OwnerToken
                recovered++
            }
        }
        if err := led.RegisterShow(showID, show.SeatingCapacity, seeds); err != nil {
            return err
        }
        if recovered > 0 {
            log.Printf("ledger: show %d recovered with %d booked seat(s)", showID, recovered)
        }
    }
    log.Printf("ledger: %d show(s) registered", len(showIDs))
    return nil
}
