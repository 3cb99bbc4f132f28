package middleware

import "github.com/gin-gonic/gin"

const unmatchedRoute = "unmatched"

// RouteClasses names route templates that logging and metrics treat
// specially. Health routes are health checks and scrapes. Streams stay open
// for the life of a realtime session.
type RouteClasses struct {
	Health  []string
	Streams []string
}

type routeSet struct {
	health  map[string]struct{}
	streams map[string]struct{}
}

func (rc RouteClasses) compile() routeSet {
	return routeSet{health: toSet(rc.Health), streams: toSet(rc.Streams)}
}

func (s routeSet) isHealth(route string) bool {
	_, ok := s.health[route]
	return ok
}

func (s routeSet) isStream(route string) bool {
	_, ok := s.streams[route]
	return ok
}

// routeOf returns the matched route template, or "unmatched" for 404s so
// arbitrary paths never become label values.
func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return unmatchedRoute
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
