package repository

import (
	"sync"

	"gorm.io/gorm"
)

// NewRepositories builds all repository implementations over one DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Enrollment: NewEnrollmentRepository(db),
		Payer:      NewPayerRepository(db),
		Waiver:     NewWaiverRepository(db),
		AuditLog:   NewAuditLogRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetEnrollmentRepository returns the enrollment repository instance
func (f *Factory) GetEnrollmentRepository() EnrollmentRepository {
	return f.GetRepositories().Enrollment
}

// GetPayerRepository returns the payer repository instance
func (f *Factory) GetPayerRepository() PayerRepository {
	return f.GetRepositories().Payer
}

// GetWaiverRepository returns the waiver repository instance
func (f *Factory) GetWaiverRepository() WaiverRepository {
	return f.GetRepositories().Waiver
}

// GetAuditLogRepository returns the audit log repository instance
func (f *Factory) GetAuditLogRepository() AuditLogRepository {
	return f.GetRepositories().AuditLog
}

// Global factory instance
var globalFactory *Factory

// InitializeFactory binds the global repository factory to a database
// handle. Calling it again replaces the factory; tests re-initialize with
// their own handle.
func InitializeFactory(db *gorm.DB) {
	globalFactory = NewFactory(db)
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
