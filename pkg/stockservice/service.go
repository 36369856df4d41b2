package stockservice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/events"
	"github.com/SGNL-ai/stockfile/pkg/models"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Repository is the storage contract shared by the stock file handler and the
// SQLite repository.
type Repository interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, code string) (models.Item, error)
	CreateItem(ctx context.Context, item models.Item) error
	UpdateItem(ctx context.Context, item models.Item) error
	DeleteItem(ctx context.Context, code string) error
	RecordSale(ctx context.Context, item models.Item, sale models.Sale) error
	ListSales(ctx context.Context) ([]models.Sale, error)
	Backup(ctx context.Context) (string, error)
	Close() error
}

type Publisher interface {
	Publish(event events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

type Service struct {
	Repo           Repository
	Publisher      Publisher
	Logger         *zap.Logger
	VATRate        decimal.Decimal
	DefaultPerPage int

	// mu serialises mutations so read-check-write sequences are atomic.
	mu sync.Mutex

	now              func() time.Time
	newSaleID        func() (string, error)
	newTransactionID func() (string, error)
}

func NewService(repo Repository, publisher Publisher, vatRate decimal.Decimal, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &Service{
		Repo:           repo,
		Publisher:      publisher,
		Logger:         logger.Named("stockservice"),
		VATRate:        vatRate,
		DefaultPerPage: DefaultPerPage,
		now:            time.Now,
		newSaleID: func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}

			return id.String(), nil
		},
		newTransactionID: func() (string, error) {
			return gonanoid.New(10)
		},
	}
}

func (s *Service) publish(eventType events.Type, code string, data interface{}) {
	s.Publisher.Publish(events.Event{
		Type:      eventType,
		StockCode: code,
		Timestamp: s.now().UTC(),
		Data:      data,
	})
}

func (s *Service) withVAT(items []models.Item) []models.Item {
	for i := range items {
		items[i] = items[i].WithVAT(s.VATRate)
	}

	return items
}

// Backup snapshots the underlying repository.
func (s *Service) Backup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.Repo.Backup(ctx)
	if err != nil {
		s.Logger.Error("Failed to back up stock data.", zap.Error(err))

		return "", err
	}

	return path, nil
}
