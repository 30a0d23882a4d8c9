// Package daemon runs the long-lived processes: a parameter node (store,
// services, link, admin HTTP, declaration hot reload) and a standalone
// router. Both split Start, which binds every listener so startup errors
// surface immediately, from Serve, which blocks until the context ends.
package daemon
