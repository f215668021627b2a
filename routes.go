package sessionx

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is one entry of the route table. Children nest under the parent
// path and inherit nothing: every node declares its own RequiresAuth.
type Route struct {
	Path         string
	Name         string
	Title        string
	RequiresAuth bool
	// Redirect sends navigation elsewhere before any guard runs.
	Redirect string
	Children []Route
}

// Location is a concrete navigation target matched against the table.
type Location struct {
	Path   string
	Params map[string]string
	Route  Route
}

// Param returns the named path parameter.
func (l Location) Param(name string) string {
	return l.Params[name]
}

// Well-known paths of the default table.
const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	DashboardPath = "/dashboard"
)

// DefaultRoutes is the client's route table.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Redirect: DashboardPath},
		{Path: LoginPath, Name: "Login", Title: "Login"},
		{Path: RegisterPath, Name: "Register", Title: "Register"},
		{
			Path:         DashboardPath,
			Name:         "Dashboard",
			Title:        "Dashboard",
			RequiresAuth: true,
			Redirect:     DashboardPath + "/review",
			Children: []Route{
				{Path: "review", Name: "Review", Title: "Code Review", RequiresAuth: true},
				{Path: "history", Name: "History", Title: "Review History", RequiresAuth: true},
				{Path: "detail/:id", Name: "Detail", Title: "Review Detail", RequiresAuth: true},
				{Path: "profile", Name: "Profile", Title: "Profile", RequiresAuth: true},
			},
		},
	}
}

// Router matches paths against a flattened route table.
type Router struct {
	mux      *chi.Mux
	patterns map[string]Route
	names    map[string]string
}

// NewRouter flattens routes and indexes them for matching.
func NewRouter(routes []Route) (*Router, error) {
	r := &Router{
		mux:      chi.NewRouter(),
		patterns: make(map[string]Route),
		names:    make(map[string]string),
	}
	if err := r.add("", routes); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Router) add(parent string, routes []Route) error {
	for _, route := range routes {
		full := joinRoutePath(parent, route.Path)
		if !strings.HasPrefix(full, "/") {
			return fmt.Errorf("route %q: path must be absolute", full)
		}
		pattern := chiPattern(full)
		if _, dup := r.patterns[pattern]; dup {
			return fmt.Errorf("route %q declared twice", full)
		}

		flat := route
		flat.Path = full
		flat.Children = nil
		r.patterns[pattern] = flat
		if route.Name != "" {
			if _, dup := r.names[route.Name]; dup {
				return fmt.Errorf("route name %q declared twice", route.Name)
			}
			r.names[route.Name] = full
		}
		r.mux.Method(http.MethodGet, pattern, http.NotFoundHandler())

		if err := r.add(full, route.Children); err != nil {
			return err
		}
	}
	return nil
}

// Match resolves path to its route.
func (r *Router) Match(path string) (Location, error) {
	path = normalizePath(path)
	rctx := chi.NewRouteContext()
	if !r.mux.Match(rctx, http.MethodGet, path) {
		return Location{}, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}
	route, ok := r.patterns[rctx.RoutePattern()]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}
	loc := Location{Path: path, Route: route}
	if n := len(rctx.URLParams.Keys); n > 0 {
		loc.Params = make(map[string]string, n)
		for i, k := range rctx.URLParams.Keys {
			loc.Params[k] = rctx.URLParams.Values[i]
		}
	}
	return loc, nil
}

// PathOf returns the declared path of the named route.
func (r *Router) PathOf(name string) (string, bool) {
	p, ok := r.names[name]
	return p, ok
}

// Routes returns the flattened table ordered by path.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.patterns))
	for _, route := range r.patterns {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func joinRoutePath(parent, child string) string {
	if strings.HasPrefix(child, "/") || parent == "" {
		return child
	}
	return strings.TrimSuffix(parent, "/") + "/" + child
}

// chiPattern rewrites ":name" segments into chi's "{name}" form.
func chiPattern(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") && len(s) > 1 {
			segs[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
