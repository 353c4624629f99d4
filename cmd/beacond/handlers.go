package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/cwbeacon/pkg/logging"
	"github.com/dougsko/cwbeacon/pkg/protocol"
	"github.com/dougsko/cwbeacon/pkg/remote"
	"github.com/dougsko/cwbeacon/pkg/storage"
)

// handleGetStatus returns the beacon status
func (d *BeaconDaemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"status": d.engine.Status(),
	}))
}

// handleGetConfig returns the live beacon settings
func (d *BeaconDaemon) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"settings": d.engine.Settings(),
	}))
}

// handleCommand applies a "field=value" command the same way a LoRa
// packet would
func (d *BeaconDaemon) handleCommand(c *gin.Context) {
	var req protocol.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(err.Error()))
		return
	}
	if req.Command == "" {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse("command cannot be empty"))
		return
	}

	cmd, err := d.engine.Submit(req.Command)
	if err != nil {
		var verr *protocol.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, protocol.ErrUnknownField):
			c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, protocol.NewErrorResponse(err.Error()))
		}
		return
	}

	status := remote.StatusApplied
	if _, ok := cmd.(protocol.WriteConfig); ok {
		status = remote.StatusPersisted
	}

	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"field":    cmd.Field(),
		"value":    cmd.Value(),
		"status":   status,
		"settings": d.engine.Settings(),
	}))
}

// journal returns the journal or writes a 503 when it is disabled
func (d *BeaconDaemon) journal(c *gin.Context) *storage.Journal {
	journal := d.engine.Journal()
	if journal == nil {
		c.JSON(http.StatusServiceUnavailable, protocol.NewErrorResponse("journal not enabled"))
	}
	return journal
}

// pageParams parses limit and offset query parameters
func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleGetCommands returns journaled remote commands
func (d *BeaconDaemon) handleGetCommands(c *gin.Context) {
	journal := d.journal(c)
	if journal == nil {
		return
	}

	limit, offset := pageParams(c)
	query := storage.CommandQuery{
		Limit:  limit,
		Offset: offset,
		Source: c.Query("source"),
		Status: c.Query("status"),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, protocol.NewErrorResponse("since must be RFC3339"))
			return
		}
		query.Since = &t
	}

	commands, err := journal.GetCommands(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"commands": commands,
		"count":    len(commands),
	}))
}

// handleGetCycles returns journaled beacon cycles
func (d *BeaconDaemon) handleGetCycles(c *gin.Context) {
	journal := d.journal(c)
	if journal == nil {
		return
	}

	limit, offset := pageParams(c)
	cycles, err := journal.GetCycles(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	}))
}

// handleGetJournalStats returns the lifetime journal counters
func (d *BeaconDaemon) handleGetJournalStats(c *gin.Context) {
	journal := d.journal(c)
	if journal == nil {
		return
	}

	stats, err := journal.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, protocol.NewSuccessResponse(map[string]interface{}{
		"stats": stats,
	}))
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN-local monitor
	},
}

// handleMonitorWebSocket streams keying steps as they happen
func (d *BeaconDaemon) handleMonitorWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logging.Debug("web", "Monitor WebSocket client connected")

	steps, unsubscribe := d.engine.Subscribe()
	defer unsubscribe()

	if err := conn.WriteJSON(map[string]interface{}{
		"type":   "status",
		"status": d.engine.Status(),
	}); err != nil {
		return
	}

	// the client only ever closes; reading surfaces that
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case step, ok := <-steps:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{
				"type": "step",
				"step": step,
			}); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}

		case <-closed:
			logging.Debug("web", "Monitor WebSocket client disconnected")
			return

		case <-d.ctx.Done():
			return
		}
	}
}
