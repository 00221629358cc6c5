// Package redis connects clubkit services to Redis through go-redis/v9.
//
// Connect retries until the server answers a PING, and Healthcheck adapts a
// client to the readiness probe signature used by httpserver. Redis only
// backs short-lived coordination state (see pkg/debounce); nothing stored
// there is authoritative.
package redis
