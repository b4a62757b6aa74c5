// Package di contains dependency injection tokens for the marketdata
// bounded context.
package di

import (
	"github.com/fd1az/krakenfeed/business/marketdata/app"
	"github.com/fd1az/krakenfeed/internal/di"
)

// DI tokens for the marketdata module.
const (
	Client = "marketdata.Client"
)

// GetClient resolves the marketdata Client singleton from sr.
func GetClient(sr di.ServiceRegistry) *app.Client {
	return di.Resolve[*app.Client](sr, Client)
}
