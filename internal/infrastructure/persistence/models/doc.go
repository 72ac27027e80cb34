// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities are free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers (ToDomain / ...FromDomain) convert between the two
// 4. Repositories use persistence models for database operations
//
// Tables: posts, people, engagements, campaigns, creatives, campaign_analytics,
// campaign_demographics, post_campaigns, scraper_runs, analyses.
package models
