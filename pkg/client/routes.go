package client

import "strings"

// LandingRoute is where the caller is sent after the session is dropped.
const LandingRoute = "/login"

// RouteClass groups requests by how an unauthorized response is handled.
type RouteClass string

const (
	// RouteLogin is the token request itself.
	RouteLogin RouteClass = "login"
	// RouteShared means the caller is currently viewing a /shared/* page.
	RouteShared RouteClass = "shared"
	// RouteProtected is everything else.
	RouteProtected RouteClass = "protected"
)

// UnauthorizedAction is what the transport does with a 401.
type UnauthorizedAction int

const (
	// ActionInline returns the error to the caller and keeps the session.
	ActionInline UnauthorizedAction = iota
	// ActionClearAndRedirect drops the session and navigates to LandingRoute.
	ActionClearAndRedirect
)

// UnauthorizedRules maps a route class onto the 401 handling.
type UnauthorizedRules map[RouteClass]UnauthorizedAction

// DefaultUnauthorizedRules redirects everywhere except the login call and
// anonymous /shared/* pages.
func DefaultUnauthorizedRules() UnauthorizedRules {
	return UnauthorizedRules{
		RouteLogin:     ActionInline,
		RouteShared:    ActionInline,
		RouteProtected: ActionClearAndRedirect,
	}
}

// Action returns the configured action, falling back to the default table.
func (r UnauthorizedRules) Action(class RouteClass) UnauthorizedAction {
	if action, ok := r[class]; ok {
		return action
	}
	return DefaultUnauthorizedRules()[class]
}

// ClassifyRoute decides the route class from the API path being called and
// the caller's current location.
func ClassifyRoute(apiPath, location string) RouteClass {
	if strings.HasSuffix(strings.TrimRight(apiPath, "/"), "/token") {
		return RouteLogin
	}
	if location == "/shared" || strings.HasPrefix(location, "/shared/") {
		return RouteShared
	}
	return RouteProtected
}

// Navigator moves the caller to another route.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }
