package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tvwebhook/internal/service"
)

const (
	msgNoBody          = "No JSON body"
	msgBadToken        = "Bad token"
	msgSelfTestOff     = "selftest disabled"
	msgSelfTestBadAuth = "Bad token in selftest"
	msgNoMessages      = "no messages yet"
	msgTooLarge        = "body too large"
)

func errorBody(msg string) gin.H {
	return gin.H{"ok": false, "error": msg}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": s.name,
		"time":    s.nowFunc().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(msgTooLarge))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody(msgNoBody))
		return
	}

	ack, err := s.svc.IngestBody(c.Request.Context(), body)
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, errorBody(msgNoBody))
		return
	case service.IsAuth(err):
		c.JSON(http.StatusForbidden, errorBody(msgBadToken))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"received_at": ack.Key.Name,
		"parsed":      ack.Parsed,
		"raw":         ack.Raw,
	})
}

func (s *Server) handleExample(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Example())
}

func (s *Server) handleSelfTest(c *gin.Context) {
	overrides := make(map[string]string)
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			overrides[k] = vs[0]
		}
	}

	res, err := s.svc.SelfTest(c.Request.Context(), overrides)
	switch {
	case errors.Is(err, service.ErrSelfTestDisabled):
		c.JSON(http.StatusForbidden, errorBody(msgSelfTestOff))
		return
	case service.IsAuth(err):
		c.JSON(http.StatusForbidden, errorBody(msgSelfTestBadAuth))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"mode":        "selftest",
		"received_at": res.Key.Name,
		"sent":        res.Sent,
		"parsed":      res.Parsed,
	})
}

func (s *Server) handleLast(c *gin.Context) {
	snap, ok := s.svc.Last().Get()
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(msgNoMessages))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"ts":     snap.Key,
		"raw":    snap.Raw,
		"parsed": snap.Parsed,
	})
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	if s.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	}
	return io.ReadAll(c.Request.Body)
}
