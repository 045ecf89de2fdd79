// Package api exposes the HTTP interface for the bridge service.
package api
