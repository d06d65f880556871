package api

import (
	"github.com/gin-gonic/gin"

	"seedbank/internal/middleware"
)

// NewRouter configures the gin engine with the standard middleware chain and
// every route of s.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	var observer middleware.RequestObserver
	if s.Metrics != nil {
		observer = s.Metrics
	}
	r.Use(gin.Recovery(), middleware.CORS(), middleware.Actor(), middleware.RequestLogger(s.logger(), observer))
	s.RegisterRoutes(r)
	return r
}
