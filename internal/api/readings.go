package api

import (
	"context"  // Context for store and Redis operations
	"errors"   // Sentinel error checks
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Timestamps and TTLs

	"github.com/tenghuan/EaseBPMate/internal/bp"     // Transcript parsing
	"github.com/tenghuan/EaseBPMate/internal/chart"  // Series building
	"github.com/tenghuan/EaseBPMate/internal/domain" // Domain models
	"github.com/tenghuan/EaseBPMate/internal/store"  // Store contracts
	"github.com/tenghuan/EaseBPMate/internal/utils"  // Cache helpers

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// RecordReadingRequest carries the speech-to-text output for one dictated
// reading. The provider may return several hypotheses; only the first (top)
// hypothesis is consumed.
type RecordReadingRequest struct {
	Transcripts []string `json:"transcripts" binding:"required,min=1"` // Recognition hypotheses, best first
	MeasureDate int64    `json:"measure_date"`                         // Optional measurement time in milliseconds; defaults to now
}

// RecordReadingHandler parses a dictated transcript into a blood-pressure
// pair and upserts it as the user's reading for that calendar day
func RecordReadingHandler(readings store.ReadingStore, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserID(c) // Parse :id path parameter
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		var req RecordReadingRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Only the top hypothesis is consulted, matching the voice flow
		transcript := req.Transcripts[0]
		systolic, diastolic, ok := bp.ParseTranscript(transcript)
		if !ok {
			// Unrecognized speech is an expected outcome, not a server error
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not extract a reading, say for example: 高压120，低压80"})
			return
		}
		measureDate := req.MeasureDate // Optional explicit measurement time
		if measureDate == 0 {
			measureDate = time.Now().UnixMilli() // Default to the current time
		}
		reading := domain.Reading{
			UserID:      userID,      // Owning user
			Systolic:    systolic,    // Parsed high value
			Diastolic:   diastolic,   // Parsed low value
			MeasureDate: measureDate, // Measurement timestamp
		}
		// The store classifies and replaces any same-day reading atomically
		stored, err := readings.UpsertByDay(c.Request.Context(), reading)
		if err != nil {
			if errors.Is(err, store.ErrConstraintViolation) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // Owning user
				"error":   err.Error(), // Error message
			}).Error("Failed to record reading")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record reading"})
			return
		}
		// Log the stored reading
		logrus.WithFields(logrus.Fields{
			"user_id":     stored.UserID,     // Owning user
			"reading_id":  stored.ID,         // Assigned id
			"systolic":    stored.Systolic,   // High value
			"diastolic":   stored.Diastolic,  // Low value
			"is_abnormal": stored.IsAbnormal, // Classification result
		}).Info("Reading recorded")
		// Invalidate the user's cached series
		_ = cache.Delete(context.Background(), seriesCacheKey(userID))
		c.JSON(http.StatusOK, gin.H{"message": "Reading recorded", "reading": stored})
	}
}

// ListReadingsHandler returns a user's readings, newest first
func ListReadingsHandler(readings store.ReadingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserID(c) // Parse :id path parameter
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		list, err := readings.ListForUser(c.Request.Context(), userID) // Fetch from the store
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // Target user
				"error":   err.Error(), // Error message
			}).Error("Failed to list readings")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list readings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"readings": list})
	}
}

// SeriesHandler projects a user's reading history into chart series with
// threshold lines, cached per user
func SeriesHandler(readings store.ReadingStore, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserID(c) // Parse :id path parameter
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		ctx := context.Background()         // Context for Redis operations
		cacheKey := seriesCacheKey(userID)  // Cache key for this user's series
		var cached chart.Series             // Cached series
		found, err := cache.Get(ctx, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"series": cached, "cached": true})
			return
		}
		list, err := readings.ListForUser(c.Request.Context(), userID) // Fetch history
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // Target user
				"error":   err.Error(), // Error message
			}).Error("Failed to build series")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build series"})
			return
		}
		series := chart.Build(list) // Project into renderable series
		// Cache the result
		_ = cache.Set(ctx, cacheKey, series, cacheTTL)
		c.JSON(http.StatusOK, gin.H{"series": series, "cached": false})
	}
}

// seriesCacheKey builds the per-user cache key for chart series
func seriesCacheKey(userID uint) string {
	return "series:user:" + strconv.Itoa(int(userID))
}
