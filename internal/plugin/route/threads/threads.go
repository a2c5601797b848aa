// Package threads mounts the /v1 thread and item routes consumed by the agent
// frontend.
package threads

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chirino/thread-service/internal/config"
	"github.com/chirino/thread-service/internal/model"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts thread, item and attachment routes.
func MountRoutes(r *gin.Engine, store registrystore.ThreadStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/threads", func(c *gin.Context) {
		listThreads(c, store, cfg)
	})
	g.POST("/threads", func(c *gin.Context) {
		createThread(c, store)
	})
	g.GET("/threads/:threadId", func(c *gin.Context) {
		getThread(c, store)
	})
	g.DELETE("/threads/:threadId", func(c *gin.Context) {
		deleteThread(c, store)
	})

	g.GET("/threads/:threadId/items", func(c *gin.Context) {
		listItems(c, store, cfg)
	})
	g.POST("/threads/:threadId/items", func(c *gin.Context) {
		appendItem(c, store)
	})
	g.GET("/threads/:threadId/items/:itemId", func(c *gin.Context) {
		getItem(c, store)
	})
	g.PUT("/threads/:threadId/items/:itemId", func(c *gin.Context) {
		updateItem(c, store)
	})
	g.DELETE("/threads/:threadId/items/:itemId", func(c *gin.Context) {
		deleteItem(c, store)
	})

	// Attachment persistence is a deliberate capability gap of this backend;
	// the store answers every call with UnsupportedError, mapped to 501 here.
	g.POST("/attachments", func(c *gin.Context) {
		var attachment model.Attachment
		if err := c.ShouldBindJSON(&attachment); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		handleError(c, store.SaveAttachment(c.Request.Context(), &attachment))
	})
	g.GET("/attachments/:attachmentId", func(c *gin.Context) {
		_, err := store.LoadAttachment(c.Request.Context(), c.Param("attachmentId"))
		handleError(c, err)
	})
	g.DELETE("/attachments/:attachmentId", func(c *gin.Context) {
		handleError(c, store.DeleteAttachment(c.Request.Context(), c.Param("attachmentId")))
	})
}

func listThreads(c *gin.Context, store registrystore.ThreadStore, cfg *config.Config) {
	limit, order, after, ok := pageParams(c, cfg)
	if !ok {
		return
	}
	page, err := store.LoadThreads(c.Request.Context(), limit, after, order)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func createThread(c *gin.Context, store registrystore.ThreadStore) {
	var metadata model.ThreadMetadata
	if err := c.ShouldBindJSON(&metadata); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if metadata.ID == "" {
		metadata.ID = fmt.Sprintf("thr_%s", uuid.NewString())
	}
	if err := store.SaveThread(c.Request.Context(), &metadata); err != nil {
		handleError(c, err)
		return
	}
	saved, err := store.LoadThread(c.Request.Context(), metadata.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func getThread(c *gin.Context, store registrystore.ThreadStore) {
	metadata, err := store.LoadThread(c.Request.Context(), c.Param("threadId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, metadata)
}

func deleteThread(c *gin.Context, store registrystore.ThreadStore) {
	if err := store.DeleteThread(c.Request.Context(), c.Param("threadId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listItems(c *gin.Context, store registrystore.ThreadStore, cfg *config.Config) {
	limit, order, after, ok := pageParams(c, cfg)
	if !ok {
		return
	}
	page, err := store.LoadThreadItems(c.Request.Context(), c.Param("threadId"), after, limit, order)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func appendItem(c *gin.Context, store registrystore.ThreadStore) {
	threadID := c.Param("threadId")
	var item model.ThreadItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if item.ID == "" {
		item.ID = fmt.Sprintf("msg_%s", uuid.NewString())
	}
	item.ThreadID = threadID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := store.AddThreadItem(c.Request.Context(), threadID, &item); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func getItem(c *gin.Context, store registrystore.ThreadStore) {
	item, err := store.LoadItem(c.Request.Context(), c.Param("threadId"), c.Param("itemId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func updateItem(c *gin.Context, store registrystore.ThreadStore) {
	threadID := c.Param("threadId")
	var item model.ThreadItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The path identifies the item; a mismatched body id is rejected rather
	// than silently writing under a different key.
	if item.ID != "" && item.ID != c.Param("itemId") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item id in body does not match path"})
		return
	}
	item.ID = c.Param("itemId")
	item.ThreadID = threadID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := store.SaveItem(c.Request.Context(), threadID, &item); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func deleteItem(c *gin.Context, store registrystore.ThreadStore) {
	err := store.DeleteThreadItem(c.Request.Context(), c.Param("threadId"), c.Param("itemId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pageParams(c *gin.Context, cfg *config.Config) (int, registrystore.Order, *string, bool) {
	limit := queryInt(c, "limit", cfg.DefaultPageLimit)
	if limit > cfg.MaxPageLimit {
		limit = cfg.MaxPageLimit
	}
	order, err := registrystore.ParseOrder(c.Query("order"))
	if err != nil {
		handleError(c, err)
		return 0, "", nil, false
	}
	return limit, order, queryPtr(c, "after"), true
}

func queryPtr(c *gin.Context, name string) *string {
	if value := c.Query(name); value != "" {
		return &value
	}
	return nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}
	var notFound *registrystore.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
		return
	}
	var unsupported *registrystore.UnsupportedError
	if errors.As(err, &unsupported) {
		c.JSON(http.StatusNotImplemented, gin.H{"code": "unsupported", "error": err.Error()})
		return
	}
	var validation *registrystore.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation", "error": err.Error()})
		return
	}
	var invalidCtx *registrystore.InvalidContextError
	if errors.As(err, &invalidCtx) {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "invalid_context", "error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
