//go:build linux

package ouroboros

// HandlerFunc handles a single matched request.
type HandlerFunc func(req *Request, w *ResponseWriter)

// Router is a two-level exact-match table: method, then path. There is no
// pattern matching, wildcard, or parameter extraction — a route matches a
// request only on an identical method and path.
//
// Loading routes with Handle/HandleFunc is not safe for concurrent use
// with Lookup; register every route before starting the engine's Run
// loop.
type Router struct {
	routes map[Method]map[string]HandlerFunc
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[Method]map[string]HandlerFunc)}
}

// Handle registers handler for method and path.
func (rt *Router) Handle(method Method, path string, handler HandlerFunc) {
	if rt.routes[method] == nil {
		rt.routes[method] = make(map[string]HandlerFunc)
	}
	rt.routes[method][path] = handler
}

// HandleFunc is a convenience wrapper over Handle taking a method name.
func (rt *Router) HandleFunc(method, path string, handler HandlerFunc) {
	rt.Handle(ParseMethod(method), path, handler)
}

// Lookup returns the handler registered for method and path, and
// whether one was found.
func (rt *Router) Lookup(method Method, path string) (HandlerFunc, bool) {
	byPath, ok := rt.routes[method]
	if !ok {
		return nil, false
	}
	h, ok := byPath[path]
	return h, ok
}

// NotFound writes the router's default 404 response.
func NotFound(w *ResponseWriter) {
	w.WriteStatus(404)
	w.SetHeader("Content-Type", "text/plain")
	w.Write([]byte("Not Found"))
}
