package httpgin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/service"
	"github.com/lahjaprojekti/lahja-go/internal/service/admin"
	"github.com/lahjaprojekti/lahja-go/internal/service/allocator"
	"github.com/lahjaprojekti/lahja-go/internal/service/lifecycle"
	"github.com/lahjaprojekti/lahja-go/internal/service/query"
	"github.com/lahjaprojekti/lahja-go/internal/store"
)

func NewRouter(
	svcs *service.Services,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/slots", handleListSlots(svcs))
	r.GET("/appstate", handleGetAppState(svcs))

	r.POST("/gifts", handleCreateGift(svcs))
	r.GET("/gifts/:id", handleGetGift(svcs))
	r.PUT("/gifts/:id", handleUpdateGift(svcs))
	r.DELETE("/gifts/:id", handleDeleteGift(svcs))

	r.POST("/reservations", handleCreateReservation(svcs))
	r.GET("/reservations/:id", handleGetReservation(svcs))

	// Admin-API
	// TODO: add admin middleware
	adm := r.Group("/admin")
	{
		adm.POST("/slots", handleBatchCreateSlots(svcs))
		adm.PUT("/slots/:id", handleUpdateSlot(svcs))
		adm.DELETE("/slots/:id", handleDeleteSlot(svcs))

		adm.GET("/gifts", handleListGifts(svcs))

		adm.GET("/artists", handleListArtists(svcs))
		adm.PUT("/artists/:id", handleUpsertArtist(svcs))
		adm.DELETE("/artists/:id", handleDeleteArtist(svcs))

		adm.PUT("/appstate", handleSetAppState(svcs))
	}

	return r
}

func handleListSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		region := strings.TrimSpace(c.Query("region"))
		if region == "" {
			badRequest(c, "region is required")
			return
		}
		slots, err := svcs.Query.ListRegionSlots(c.Request.Context(), region)
		if err != nil {
			respondErr(c, err)
			return
		}
		if slots == nil {
			slots = []*domain.Slot{}
		}
		// ETag + Cache-Control 15s: the hot path during an open window
		writeJSONWithCache(c, http.StatusOK, slots, "public, max-age=15", true)
	}
}

func handleGetAppState(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := svcs.Query.GetAppState(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}

func handleCreateGift(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GiftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		gift := giftFromRequest(req)
		if gift.ID == "" {
			gift.ID = uuid.New().String()
		}
		if err := svcs.Lifecycle.CreateGift(c.Request.Context(), gift); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": gift.ID})
	}
}

func handleGetGift(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		gift, err := svcs.Query.GetGift(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gift)
	}
}

func handleUpdateGift(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GiftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		gift := giftFromRequest(req)
		gift.ID = c.Param("id")
		updated, err := svcs.Lifecycle.UpdateGift(c.Request.Context(), gift)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func handleDeleteGift(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Lifecycle.DeleteGift(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleCreateReservation records the intent and returns 202: the slot is
// granted asynchronously, and the caller polls the gift to learn the
// outcome.
func handleCreateReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rlKey := "ip:" + c.ClientIP()
		id, err := svcs.Allocator.CreateRequest(
			c.Request.Context(),
			req.ID,
			req.GiftID,
			req.SlotID,
			rlKey,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusAccepted, CreateReservationResponse{ReservationID: id})
	}
}

func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := svcs.Query.GetReservation(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func handleBatchCreateSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchCreateSlotsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		slots := make([]*domain.Slot, 0, len(req.Slots))
		for _, in := range req.Slots {
			slots = append(slots, &domain.Slot{
				ID:     in.ID,
				Region: in.Region,
				Date:   in.Date,
				Time:   in.Time,
				Status: domain.SlotStatus(in.Status),
			})
		}
		created, err := svcs.Admin.CreateSlots(c.Request.Context(), slots)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"created": created})
	}
}

func handleUpdateSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in SlotInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
		slot := &domain.Slot{
			ID:     c.Param("id"),
			Region: in.Region,
			Date:   in.Date,
			Time:   in.Time,
			Status: domain.SlotStatus(in.Status),
		}
		if err := svcs.Admin.UpdateSlot(c.Request.Context(), slot); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, slot)
	}
}

func handleDeleteSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Admin.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleListGifts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		gifts, err := svcs.Query.ListGifts(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gifts)
	}
}

func handleListArtists(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artists, err := svcs.Query.ListArtists(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, artists)
	}
}

func handleUpsertArtist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpsertArtistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		artist := &domain.Artist{
			ID:          c.Param("id"),
			Name:        req.Name,
			PhoneNumber: req.PhoneNumber,
		}
		for _, in := range req.Itineraries {
			artist.Itineraries = append(artist.Itineraries, domain.ArtistItinerary{
				Region: in.Region,
				From:   domain.Moment{Date: in.FromDate, Time: in.FromTime},
				To:     domain.Moment{Date: in.ToDate, Time: in.ToTime},
			})
		}
		if err := svcs.Admin.UpsertArtist(c.Request.Context(), artist); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, artist)
	}
}

func handleDeleteArtist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Admin.DeleteArtist(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleSetAppState(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetAppStateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		state := domain.AppState(req.State)
		if err := svcs.Lifecycle.SetAppState(c.Request.Context(), state); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}

// --- Helpers ---

func giftFromRequest(req GiftRequest) *domain.Gift {
	return &domain.Gift{
		ID:              req.ID,
		Status:          domain.GiftStatus(req.Status),
		FromName:        req.FromName,
		FromPhoneNumber: req.FromPhoneNumber,
		FromLanguage:    req.FromLanguage,
		ToName:          req.ToName,
		ToAddress:       req.ToAddress,
		MessageText:     req.Message,
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// allocator service
	case errors.Is(err, allocator.ErrBadRequest):
		badRequest(c, "gift and slot ids are required")
		return
	case errors.Is(err, allocator.ErrRequestConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation id already used"})
		return
	case errors.Is(err, allocator.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	// lifecycle service
	case errors.Is(err, lifecycle.ErrMissingGiftID):
		badRequest(c, "gift id is required")
		return
	case errors.Is(err, lifecycle.ErrGiftExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "gift already exists"})
		return
	case errors.Is(err, lifecycle.ErrGiftNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "gift not found"})
		return
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		badRequest(c, "invalid gift status")
		return
	case errors.Is(err, lifecycle.ErrInvalidAppState):
		badRequest(c, "invalid app state")
		return
	// query service
	case errors.Is(err, query.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "slot not found"})
		return
	case errors.Is(err, query.ErrGiftNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "gift not found"})
		return
	case errors.Is(err, query.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
		return
	// admin service
	case errors.Is(err, admin.ErrInvalidSlot):
		badRequest(c, "invalid slot")
		return
	case errors.Is(err, admin.ErrSlotExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "slot already exists"})
		return
	case errors.Is(err, admin.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "slot not found"})
		return
	case errors.Is(err, admin.ErrInvalidArtist):
		badRequest(c, "invalid artist")
		return
	case errors.Is(err, admin.ErrArtistNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "artist not found"})
		return
	// store
	case errors.Is(err, store.ErrTxRetryExhausted):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "write conflict, retry"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
