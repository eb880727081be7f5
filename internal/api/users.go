package api

import (
	"context"  // Context for store and Redis operations
	"errors"   // Sentinel error checks
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Cache TTLs

	"github.com/tenghuan/EaseBPMate/internal/domain" // Domain models
	"github.com/tenghuan/EaseBPMate/internal/store"  // Store contracts
	"github.com/tenghuan/EaseBPMate/internal/utils"  // Cache helpers

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

const (
	usersCacheKey = "users:all"      // Cache key for the full user list
	cacheTTL      = 60 * time.Second // Response cache lifetime
)

// CreateUserRequest represents a create-user request
type CreateUserRequest struct {
	Name string `json:"name" binding:"required"` // Display name must be provided
}

// CreateUserHandler registers a new tracked person
func CreateUserHandler(users store.UserStore, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user, err := users.Create(c.Request.Context(), req.Name) // Create the user
		if err != nil {
			// A blank name is a caller mistake, everything else is a store failure
			if errors.Is(err, store.ErrInvalidArgument) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Name must not be blank"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"name":  req.Name,    // Requested name
				"error": err.Error(), // Error message
			}).Error("Failed to create user") // Log failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		// Log successful creation
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,   // Assigned id
			"name":    user.Name, // Display name
		}).Info("User created")
		// Invalidate the cached user list
		_ = cache.Delete(context.Background(), usersCacheKey)
		c.JSON(http.StatusCreated, gin.H{"message": "User created", "user": user})
	}
}

// ListUsersHandler returns all users ordered by name
func ListUsersHandler(users store.UserStore, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for Redis operations
		var cached struct {
			Users []userResponse `json:"users"` // Cached user list
		}
		// Try to get from cache
		found, err := cache.Get(ctx, usersCacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"users": cached.Users, "cached": true})
			return
		}
		list, err := users.ListAll(c.Request.Context()) // Fetch from the store
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to list users")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}
		resp := make([]userResponse, len(list))
		for i, u := range list {
			resp[i] = userResponse{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
		}
		respData := gin.H{"users": resp, "cached": false}
		// Cache the result
		_ = cache.Set(ctx, usersCacheKey, respData, cacheTTL)
		c.JSON(http.StatusOK, respData)
	}
}

// userResponse represents the user data returned to clients
type userResponse struct {
	ID        uint   `json:"id"`         // User ID
	Name      string `json:"name"`       // Display name
	CreatedAt int64  `json:"created_at"` // Creation timestamp in milliseconds
}

// DeleteUserHandler removes a user together with every reading the user owns
func DeleteUserHandler(users store.UserStore, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseUserID(c) // Parse :id path parameter
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		// Cascade delete: readings first, then the user, in one transaction
		if err := users.Delete(c.Request.Context(), userRef(id)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"user_id": id,          // Target user
				"error":   err.Error(), // Error message
			}).Error("Failed to delete user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		logrus.WithField("user_id", id).Info("User deleted") // Log deletion
		// Invalidate the user list and the user's cached series
		_ = cache.Delete(context.Background(), usersCacheKey, seriesCacheKey(id))
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}

// parseUserID extracts the numeric :id path parameter
func parseUserID(c *gin.Context) (uint, error) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(v), err
}

// userRef builds a domain.User carrying only the id, for delete calls
func userRef(id uint) domain.User {
	return domain.User{ID: id}
}
