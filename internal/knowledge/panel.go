package knowledge

import (
	"context"
	"sync"

	"voice-widget/internal/models"
)

// ConfirmFunc asks the user to approve deleting doc.
type ConfirmFunc func(doc models.Document) bool

// API is the subset of Client the panel needs.
type API interface {
	List(ctx context.Context) ([]models.Document, error)
	Upload(ctx context.Context, f File) (models.UploadResult, error)
	Delete(ctx context.Context, docID string) error
}

// Panel keeps a cached document list in sync with the backend.
type Panel struct {
	api API

	mu   sync.RWMutex
	docs []models.Document
}

// NewPanel creates a panel with an empty list. Call Refresh to load it.
func NewPanel(api API) *Panel {
	return &Panel{api: api}
}

// Documents returns the cached list.
func (p *Panel) Documents() []models.Document {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Document{}, p.docs...)
}

// Refresh reloads the list. On error the cached list is kept.
func (p *Panel) Refresh(ctx context.Context) error {
	docs, err := p.api.List(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.docs = docs
	p.mu.Unlock()
	return nil
}

// Upload sends f and refreshes the list on success.
func (p *Panel) Upload(ctx context.Context, f File) (models.UploadResult, error) {
	result, err := p.api.Upload(ctx, f)
	if err != nil {
		return models.UploadResult{}, err
	}
	return result, p.Refresh(ctx)
}

// Delete removes docID after confirm approves it, then refreshes the list.
// It reports whether the delete was confirmed. A nil confirm approves.
func (p *Panel) Delete(ctx context.Context, docID string, confirm ConfirmFunc) (bool, error) {
	doc := p.lookup(docID)
	if confirm != nil && !confirm(doc) {
		return false, nil
	}
	if err := p.api.Delete(ctx, docID); err != nil {
		return true, err
	}
	return true, p.Refresh(ctx)
}

func (p *Panel) lookup(docID string) models.Document {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.docs {
		if d.DocID == docID {
			return d
		}
	}
	return models.Document{DocID: docID}
}
