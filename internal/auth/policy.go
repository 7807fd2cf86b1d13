package auth

import (
	"net/http"
	"strings"
)

// Access is what a route demands from the caller.
type Access struct {
	Role Role
	// QueryToken allows the token in the access_token query parameter, for
	// EventSource clients that cannot send headers.
	QueryToken bool
}

type route struct {
	path   string
	prefix bool
	read   Access
	write  Access
}

func (rt route) matches(path string) bool {
	if rt.prefix {
		return strings.HasPrefix(path, rt.path)
	}
	return path == rt.path
}

var gaugeRoutes = []route{
	{path: "/api/v1/gauges/stream", read: Access{Role: RoleViewer, QueryToken: true}},
	{path: "/api/v1/gauges", prefix: true, read: Access{Role: RoleViewer}},
	{path: "/api/v1/collections", prefix: true, read: Access{Role: RoleViewer}, write: Access{Role: RoleOperator}},
	{path: "/api/v1/energy/preferences", prefix: true, write: Access{Role: RoleAdmin}},
	{path: "/api/v1/cards/", prefix: true, read: Access{Role: RoleViewer}, write: Access{Role: RoleAdmin}},
}

// Policy maps gauge API routes to the access they require.
type Policy struct {
	public map[string]struct{}
	routes []route
}

// NewPolicy builds the gauge API policy. Public paths skip authentication.
func NewPolicy(public ...string) Policy {
	set := make(map[string]struct{}, len(public))
	for _, path := range public {
		set[path] = struct{}{}
	}
	return Policy{public: set, routes: gaugeRoutes}
}

// Access resolves the access a request needs. It returns false for public
// paths and paths outside the API.
func (p Policy) Access(r *http.Request) (Access, bool) {
	path := r.URL.Path
	if _, ok := p.public[path]; ok {
		return Access{}, false
	}
	read := r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions
	for _, rt := range p.routes {
		if !rt.matches(path) {
			continue
		}
		access := rt.write
		if read {
			access = rt.read
		}
		if access.Role == "" {
			access.Role = RoleAdmin
		}
		return access, true
	}
	if !strings.HasPrefix(path, "/api/") {
		return Access{}, false
	}
	if read {
		return Access{Role: RoleViewer}, true
	}
	return Access{Role: RoleOperator}, true
}
