// Package cache provides the GET response cache used by the request runtime,
// backed by go-repository-cache.
package cache
