// Package database provides PostgreSQL connectivity and repositories.
//
// Uses pgx for connection pooling and embedded SQL files for schema setup.
// Repositories implement the domain interfaces: PresetRepository,
// SessionRepository, GiftRepository.
package database
