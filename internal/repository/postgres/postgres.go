package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/medflow/waitlist-api/internal/repository"
)

type waitlistRepository struct {
	db *sqlx.DB
}

type auditRepository struct {
	db *sqlx.DB
}

type policyRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	db *sqlx.DB
}

func NewWaitlistRepository(db *sqlx.DB) repository.WaitlistRepository {
	return &waitlistRepository{db: db}
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

func NewPolicyRepository(db *sqlx.DB) repository.PolicyRepository {
	return &policyRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}
