package config

import (
	"time"

	"github.com/spf13/viper"
)

type StorageConfig interface {
	GetDatabaseDriver() string
	GetDatabaseURL() string
	GetRedisURL() string
	GetAMQPURL() string
	GetAMQPExchange() string
	GetCleanupInterval() time.Duration
	GetCleanupRetention() time.Duration
	GetUsersFile() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

// GetDatabaseDriver is one of "memory", "postgres" or "sqlite".
func (s Storage) GetDatabaseDriver() string {
	return s.v.GetString(KeyDatabaseDriver)
}

func (s Storage) GetDatabaseURL() string {
	return s.v.GetString(KeyDatabaseURL)
}

// GetRedisURL enables the Redis authorization code store when set.
func (s Storage) GetRedisURL() string {
	return s.v.GetString(KeyRedisURL)
}

func (s Storage) GetAMQPURL() string {
	return s.v.GetString(KeyAMQPURL)
}

func (s Storage) GetAMQPExchange() string {
	return s.v.GetString(KeyAMQPExchange)
}

func (s Storage) GetCleanupInterval() time.Duration {
	return s.v.GetDuration(KeyCleanupInterval)
}

func (s Storage) GetCleanupRetention() time.Duration {
	return s.v.GetDuration(KeyCleanupRetention)
}

// GetUsersFile is the YAML document the resource-owner store is loaded from.
func (s Storage) GetUsersFile() string {
	return s.v.GetString(KeyUsersFile)
}
