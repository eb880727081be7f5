package api

import (
	"io"       // Streaming writer
	"net/http" // HTTP status codes

	"github.com/tenghuan/EaseBPMate/internal/store" // Store contracts

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// LiveUsersHandler streams the user list as server-sent events: one "users"
// event on subscribe and another after every mutation. A terminal store
// failure is delivered as an "error" event before the stream ends, so the
// client can distinguish it from an empty list.
func LiveUsersHandler(users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := users.WatchAll(c.Request.Context()) // Subscribe to the live query
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
			return
		}
		defer sub.Close() // Release the subscription when the client goes away
		c.Stream(func(w io.Writer) bool {
			snap, ok := <-sub.C // Wait for the next snapshot
			if !ok {
				return false // Subscription ended
			}
			if snap.Err != nil {
				logrus.WithField("error", snap.Err.Error()).Error("User live query failed")
				c.SSEvent("error", gin.H{"error": snap.Err.Error()}) // Terminal error event
				return false
			}
			c.SSEvent("users", snap.Rows) // Fresh snapshot
			return true
		})
	}
}

// LiveReadingsHandler streams one user's readings as server-sent events,
// same contract as LiveUsersHandler.
func LiveReadingsHandler(readings store.ReadingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserID(c) // Parse :id path parameter
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		sub, err := readings.WatchUser(c.Request.Context(), userID) // Subscribe to the live query
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
			return
		}
		defer sub.Close() // Release the subscription when the client goes away
		c.Stream(func(w io.Writer) bool {
			snap, ok := <-sub.C // Wait for the next snapshot
			if !ok {
				return false // Subscription ended
			}
			if snap.Err != nil {
				logrus.WithFields(logrus.Fields{
					"user_id": userID,             // Watched user
					"error":   snap.Err.Error(),   // Error message
				}).Error("Reading live query failed")
				c.SSEvent("error", gin.H{"error": snap.Err.Error()}) // Terminal error event
				return false
			}
			c.SSEvent("readings", snap.Rows) // Fresh snapshot
			return true
		})
	}
}
