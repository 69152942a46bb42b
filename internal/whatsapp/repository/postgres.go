package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"whatsapp-control-plane/backend/internal/db/sqlc/gen"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

type PostgresRepository struct {
	queries *gen.Queries
}

// NewPostgresRepository returns a whatsapp repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{queries: gen.New(db)}
}

// GetByID returns the instance for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	w, err := r.queries.GetWhatsapp(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genWhatsappToDomain(&w), nil
}

// GetByName returns the instance named name within companyID, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, companyID int64, name string) (*domain.Whatsapp, error) {
	w, err := r.queries.GetWhatsappByName(ctx, gen.GetWhatsappByNameParams{CompanyID: companyID, Name: name})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genWhatsappToDomain(&w), nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Whatsapp, error) {
	list, err := r.queries.ListWhatsapps(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Whatsapp, len(list))
	for i := range list {
		out[i] = genWhatsappToDomain(&list[i])
	}
	return out, nil
}

// Create persists w. Status defaults to PENDING when empty.
func (r *PostgresRepository) Create(ctx context.Context, w *domain.Whatsapp) error {
	status := w.Status
	if status == "" {
		status = domain.StatusPending
	}
	row, err := r.queries.CreateWhatsapp(ctx, gen.CreateWhatsappParams{
		Name:      w.Name,
		CompanyID: w.CompanyID,
		Status:    string(status),
	})
	if err != nil {
		return err
	}
	*w = *genWhatsappToDomain(&row)
	return nil
}

func (r *PostgresRepository) UpdateState(ctx context.Context, id int64, st domain.State) (*domain.Whatsapp, error) {
	w, err := r.queries.UpdateWhatsappState(ctx, gen.UpdateWhatsappStateParams{
		ID:      id,
		Status:  string(st.Status),
		Qrcode:  st.QRCode,
		Retries: int32(st.Retries),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genWhatsappToDomain(&w), nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, id int64, blob string) error {
	_, err := r.queries.UpdateWhatsappSession(ctx, gen.UpdateWhatsappSessionParams{ID: id, Session: blob})
	return err
}

func (r *PostgresRepository) ResetSession(ctx context.Context, id int64, status domain.Status) (*domain.Whatsapp, error) {
	w, err := r.queries.ResetWhatsappSession(ctx, gen.ResetWhatsappSessionParams{ID: id, Status: string(status)})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return genWhatsappToDomain(&w), nil
}

// AcquireConnecting claims the row in a single conditional UPDATE; the staleness window is
// evaluated against the database clock.
func (r *PostgresRepository) AcquireConnecting(ctx context.Context, id int64, staleAfter time.Duration) (bool, error) {
	n, err := r.queries.AcquireWhatsappConnecting(ctx, gen.AcquireWhatsappConnectingParams{
		ID:           id,
		StaleSeconds: staleAfter.Seconds(),
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) ReleaseConnecting(ctx context.Context, id int64, next domain.Status) (bool, error) {
	n, err := r.queries.ReleaseWhatsappConnecting(ctx, gen.ReleaseWhatsappConnectingParams{ID: id, Status: string(next)})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func genWhatsappToDomain(w *gen.Whatsapp) *domain.Whatsapp {
	if w == nil {
		return nil
	}
	status, ok := domain.ParseStatus(w.Status)
	if !ok {
		status = domain.Status(w.Status)
	}
	return &domain.Whatsapp{
		ID:        w.ID,
		Name:      w.Name,
		CompanyID: w.CompanyID,
		Status:    status,
		QRCode:    w.Qrcode,
		Retries:   int(w.Retries),
		Session:   w.Session,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
